package bridge

import (
	"context"

	"github.com/lexlapax/kernelspell/eventbus"
)

// EventGlobal implements the `Event` namespace of spec §4.2: "publish
// (topic, payload); subscribe(pattern) -> handle yielding events."
type EventGlobal struct {
	bus *eventbus.Bus
}

// Publish sends payload to every subscriber whose pattern matches topic.
func (g *EventGlobal) Publish(ctx context.Context, topic string, payload Value) error {
	return g.bus.Publish(mustCtx(ctx), topic, payload)
}

// Subscribe registers a glob-pattern subscription (spec §4.6 topic
// matching); bufferSize <= 0 uses the bus default and policy governs what
// happens once the subscriber's buffer is full.
func (g *EventGlobal) Subscribe(pattern string, bufferSize int, policy eventbus.OverflowPolicy) (*eventbus.Subscription, error) {
	return g.bus.Subscribe(pattern, bufferSize, policy)
}
