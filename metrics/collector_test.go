package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CounterKeyIsLabelOrderIndependent(t *testing.T) {
	c := NewCollector()
	c.IncCounter("hits", map[string]string{"a": "1", "b": "2"})
	c.IncCounter("hits", map[string]string{"b": "2", "a": "1"})

	m, ok := c.GetMetric("hits", map[string]string{"a": "1", "b": "2"})
	require.True(t, ok)
	assert.Equal(t, float64(2), m.Value)
	assert.Equal(t, "counter", m.Type)
}

func TestCollector_HistogramKeepsBoundedHistory(t *testing.T) {
	c := NewCollector()
	for i := 0; i < historyLimit+10; i++ {
		c.ObserveHistogram("latency", float64(i), nil)
	}

	m, ok := c.GetMetric("latency", nil)
	require.True(t, ok)
	assert.Len(t, m.History, historyLimit)
	assert.Equal(t, float64(historyLimit+10), m.Value)
	assert.Equal(t, float64(10), m.History[0])
}

func TestCollector_RecordAdapterCall(t *testing.T) {
	c := NewCollector()
	c.RecordAdapterCall("post", "find", time.Millisecond, nil)
	c.RecordAdapterCall("post", "find", time.Millisecond, errors.New("down"))

	labels := map[string]string{"model": "post", "op": "find"}
	calls, ok := c.GetMetric("adapter_calls_total", labels)
	require.True(t, ok)
	assert.Equal(t, float64(2), calls.Value)

	failures, ok := c.GetMetric("adapter_errors_total", labels)
	require.True(t, ok)
	assert.Equal(t, float64(1), failures.Value)
}

func TestCollector_SnapshotIsDetached(t *testing.T) {
	c := NewCollector()
	c.RecordLookup("model", "cached")

	all := c.GetMetrics()
	for k, m := range all {
		m.Labels["type"] = "mutated"
		all[k] = m
	}

	m, ok := c.GetMetric("container_lookups_total", map[string]string{"type": "model", "outcome": "cached"})
	require.True(t, ok)
	assert.Equal(t, "model", m.Labels["type"])
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordLookup("model", "missing")
		c.RecordAdapterCall("post", "all", time.Second, nil)
	})
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.IncCounter("x", nil)
	c.Reset()
	assert.Empty(t, c.GetMetrics())
}
