package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Collector 指标收集器
type Collector struct {
	metrics map[string]*Metric
	mu      sync.RWMutex
}

// Metric 指标
type Metric struct {
	Type      string            `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	History   []float64         `json:"history,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

const historyLimit = 100

// NewCollector 创建指标收集器
func NewCollector() *Collector {
	return &Collector{
		metrics: make(map[string]*Metric),
	}
}

// IncCounter 增加计数器
func (c *Collector) IncCounter(name string, labels map[string]string) {
	c.AddCounter(name, 1, labels)
}

// AddCounter 增加计数器值
func (c *Collector) AddCounter(name string, value float64, labels map[string]string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buildKey(name, labels)
	if metric, exists := c.metrics[key]; exists {
		metric.Value += value
		metric.Timestamp = time.Now().Unix()
		return
	}
	c.metrics[key] = &Metric{
		Type:      "counter",
		Value:     value,
		Labels:    copyLabels(labels),
		Timestamp: time.Now().Unix(),
	}
}

// ObserveHistogram 观察直方图
// Value holds the running count of observations.
func (c *Collector) ObserveHistogram(name string, value float64, labels map[string]string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buildKey(name, labels)
	if metric, exists := c.metrics[key]; exists {
		metric.History = append(metric.History, value)
		if len(metric.History) > historyLimit {
			metric.History = metric.History[1:]
		}
		metric.Value++
		metric.Timestamp = time.Now().Unix()
		return
	}
	c.metrics[key] = &Metric{
		Type:      "histogram",
		Value:     1,
		Labels:    copyLabels(labels),
		History:   []float64{value},
		Timestamp: time.Now().Unix(),
	}
}

// RecordLookup 记录容器查找
// outcome is one of "cached", "resolved", "constructed", "missing".
func (c *Collector) RecordLookup(entryType, outcome string) {
	c.IncCounter("container_lookups_total", map[string]string{
		"type":    entryType,
		"outcome": outcome,
	})
}

// RecordAdapterCall 记录适配器调用
func (c *Collector) RecordAdapterCall(modelType, op string, duration time.Duration, err error) {
	labels := map[string]string{
		"model": modelType,
		"op":    op,
	}
	c.IncCounter("adapter_calls_total", labels)
	c.ObserveHistogram("adapter_call_duration_seconds", duration.Seconds(), labels)
	if err != nil {
		c.IncCounter("adapter_errors_total", labels)
	}
}

// GetMetrics 获取所有指标
func (c *Collector) GetMetrics() map[string]Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]Metric, len(c.metrics))
	for k, v := range c.metrics {
		result[k] = v.snapshot()
	}
	return result
}

// GetMetric 获取单个指标
func (c *Collector) GetMetric(name string, labels map[string]string) (Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.metrics[buildKey(name, labels)]
	if !ok {
		return Metric{}, false
	}
	return m.snapshot(), true
}

// Reset 重置指标
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = make(map[string]*Metric)
}

func (m *Metric) snapshot() Metric {
	out := *m
	out.Labels = copyLabels(m.Labels)
	out.History = append([]float64(nil), m.History...)
	return out
}

// buildKey 构建指标键，标签按键名排序
func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(":")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
