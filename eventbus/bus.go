// Package eventbus implements the topic-pattern pub/sub fabric of spec §2
// ("Event Bus (~6%)") and §4.6: bounded per-subscriber buffers, a
// configurable overflow policy, and glob topic matching. It is the
// in-process default; eventbus/redis.go offers a distributed Pulse/Redis
// Streams-backed alternative for multi-process deployments.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// OverflowPolicy governs what happens when a subscriber's buffer is at its
// high-water mark. Names match llmspell-events/src/overflow.rs verbatim
// (spec SPEC_FULL.md §C).
type OverflowPolicy int

const (
	// DropOldest evicts the oldest buffered event to make room (the default).
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming event, keeping the buffer as-is.
	DropNewest
	// Block makes Publish wait until the subscriber has room.
	Block
	// Reject discards the incoming event for this subscriber without
	// blocking, counting it as dropped. Publish does not report the
	// rejection, and delivery to other subscribers is unaffected.
	Reject
)

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// Metrics tracks per-topic pub/sub counters (spec §4.6).
type Metrics struct {
	Published int64
	Delivered int64
	Dropped   int64
	Blocked   int64
}

// Subscription is the handle returned by Subscribe; callers must Close it
// to stop receiving events and release the buffer.
type Subscription struct {
	C      <-chan Event
	bus    *Bus
	id     uint64
	once   sync.Once
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.id)
	})
}

type subscriber struct {
	id      uint64
	pattern glob.Glob
	raw     string
	ch      chan Event
	policy  OverflowPolicy
}

// Bus is the in-process pub/sub fabric. It is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64

	metricsMu sync.Mutex
	metrics   map[string]*Metrics
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		metrics:     make(map[string]*Metrics),
	}
}

// Subscribe registers a receiver for topics matching pattern. bufferSize
// sets the bounded channel capacity; policy governs overflow at that
// capacity (spec §4.6). A bufferSize <= 0 defaults to 64.
func (b *Bus) Subscribe(pattern string, bufferSize int, policy OverflowPolicy) (*Subscription, error) {
	g, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	id := atomic.AddUint64(&b.nextID, 1)
	sub := &subscriber{id: id, pattern: g, raw: pattern, ch: make(chan Event, bufferSize), policy: policy}

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	return &Subscription{C: sub.ch, bus: b, id: id}, nil
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscriber, applying each
// subscriber's own overflow policy independently. Publish never blocks on
// a Reject or DropOldest/DropNewest subscriber; it blocks only on
// subscribers using the Block policy, and only until ctx is done.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	matches := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.pattern.Match(topic) {
			matches = append(matches, sub)
		}
	}
	b.mu.RUnlock()

	m := b.metricsFor(topic)
	atomic.AddInt64(&m.Published, 1)

	evt := Event{Topic: topic, Payload: payload}
	for _, sub := range matches {
		b.deliver(ctx, sub, evt, m)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, sub *subscriber, evt Event, m *Metrics) {
	select {
	case sub.ch <- evt:
		atomic.AddInt64(&m.Delivered, 1)
		return
	default:
	}

	switch sub.policy {
	case DropNewest:
		atomic.AddInt64(&m.Dropped, 1)
	case Reject:
		atomic.AddInt64(&m.Dropped, 1)
	case Block:
		atomic.AddInt64(&m.Blocked, 1)
		select {
		case sub.ch <- evt:
			atomic.AddInt64(&m.Delivered, 1)
		case <-ctx.Done():
			atomic.AddInt64(&m.Dropped, 1)
		}
	case DropOldest:
		fallthrough
	default:
		select {
		case <-sub.ch:
			atomic.AddInt64(&m.Dropped, 1)
		default:
		}
		select {
		case sub.ch <- evt:
			atomic.AddInt64(&m.Delivered, 1)
		default:
			atomic.AddInt64(&m.Dropped, 1)
		}
	}
}

func (b *Bus) metricsFor(topic string) *Metrics {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	m, ok := b.metrics[topic]
	if !ok {
		m = &Metrics{}
		b.metrics[topic] = m
	}
	return m
}

// MetricsFor returns a snapshot of the counters for topic.
func (b *Bus) MetricsFor(topic string) Metrics {
	m := b.metricsFor(topic)
	return Metrics{
		Published: atomic.LoadInt64(&m.Published),
		Delivered: atomic.LoadInt64(&m.Delivered),
		Dropped:   atomic.LoadInt64(&m.Dropped),
		Blocked:   atomic.LoadInt64(&m.Blocked),
	}
}
