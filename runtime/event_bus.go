package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/strata/addon"
	"github.com/leeforge/strata/metrics"
)

// eventBus implements addon.EventBus with a buffered channel and
// backpressure. Topics may be exact ("runtime.booted"), a prefix pattern
// ("addon.*") or "*" for every event.
type eventBus struct {
	subscribers map[string][]subscriberEntry
	mu          sync.RWMutex
	ch          chan eventEnvelope
	wg          sync.WaitGroup
	closed      atomic.Bool
	logger      *zap.Logger
	metrics     *metrics.Collector
	nextID      atomic.Uint64
	done        chan struct{}
	stopped     chan struct{}
}

type eventEnvelope struct {
	ctx   context.Context
	event addon.Event
}

type subscriberEntry struct {
	id      uint64
	handler addon.EventHandler
}

type subscription struct {
	bus   *eventBus
	topic string
	id    uint64
	once  sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		subs := s.bus.subscribers[s.topic]
		for i, entry := range subs {
			if entry.id == s.id {
				s.bus.subscribers[s.topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(s.bus.subscribers[s.topic]) == 0 {
			delete(s.bus.subscribers, s.topic)
		}
	})
}

// NewEventBus creates an EventBus with the given buffer size. Published
// events and handler failures are counted into collector when it is non-nil.
func NewEventBus(bufferSize int, logger *zap.Logger, collector ...*metrics.Collector) *eventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &eventBus{
		subscribers: make(map[string][]subscriberEntry),
		ch:          make(chan eventEnvelope, bufferSize),
		logger:      logger,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	if len(collector) > 0 {
		bus.metrics = collector[0]
	}

	go bus.dispatch()
	return bus
}

func (b *eventBus) dispatch() {
	defer close(b.stopped)
	for {
		select {
		case env := <-b.ch:
			b.fanOut(env)
		case <-b.done:
			for {
				select {
				case env := <-b.ch:
					b.fanOut(env)
				default:
					return
				}
			}
		}
	}
}

func (b *eventBus) fanOut(env eventEnvelope) {
	for _, entry := range b.matching(env.event.Name) {
		b.wg.Add(1)
		go b.invoke(env, entry.handler)
	}
}

func (b *eventBus) invoke(env eventEnvelope, h addon.EventHandler) {
	defer b.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			b.handlerFailed(env.event, fmt.Errorf("handler panic: %v", p))
		}
	}()
	if err := h(env.ctx, env.event); err != nil {
		b.handlerFailed(env.event, err)
	}
}

func (b *eventBus) handlerFailed(event addon.Event, err error) {
	b.logger.Warn("event handler error",
		zap.String("event", event.Name),
		zap.String("source", event.Source),
		zap.Error(err))
	b.metrics.IncCounter("event_handler_errors_total", map[string]string{"topic": event.Name})
}

// matching returns the handlers subscribed to name, exact topics first.
func (b *eventBus) matching(name string) []subscriberEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := append([]subscriberEntry{}, b.subscribers[name]...)
	for topic, entries := range b.subscribers {
		if topic != name && topicMatches(topic, name) {
			subs = append(subs, entries...)
		}
	}
	return subs
}

func topicMatches(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(name, prefix+".")
	}
	return pattern == name
}

// Publish sends an event. Blocks until buffer has space or ctx expires.
func (b *eventBus) Publish(ctx context.Context, event addon.Event) error {
	if b.closed.Load() {
		return addon.ErrBusClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	env := eventEnvelope{ctx: ctx, event: event}
	select {
	case b.ch <- env:
	default:
		// Buffer full -- block with backpressure
		select {
		case b.ch <- env:
		case <-ctx.Done():
			return addon.ErrPublishTimeout
		}
	}
	b.metrics.IncCounter("events_published_total", map[string]string{"topic": event.Name})
	return nil
}

// Subscribe registers a handler for a topic or topic pattern.
func (b *eventBus) Subscribe(topic string, handler addon.EventHandler) addon.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subscribers[topic] = append(b.subscribers[topic], subscriberEntry{
		id:      id,
		handler: handler,
	})

	return &subscription{bus: b, topic: topic, id: id}
}

// Close stops accepting new events, drains pending ones and waits for
// in-flight handlers.
func (b *eventBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	close(b.done)
	<-b.stopped
	b.wg.Wait()
	return nil
}
