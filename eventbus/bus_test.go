package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/kernelspell/eventbus"
)

func TestGlobMatchingOneSegment(t *testing.T) {
	b := eventbus.New()
	sub, err := b.Subscribe("tool.*.execute", 4, eventbus.DropOldest)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(context.Background(), "tool.before.execute", 1))
	require.NoError(t, b.Publish(context.Background(), "tool.before.after.execute", 2))

	select {
	case evt := <-sub.C:
		assert.Equal(t, "tool.before.execute", evt.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected delivery")
	}
	select {
	case <-sub.C:
		t.Fatal("unexpected second delivery for non-matching multi-segment topic")
	default:
	}
}

func TestGlobMatchingManySegments(t *testing.T) {
	b := eventbus.New()
	sub, err := b.Subscribe("tool.**", 4, eventbus.DropOldest)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(context.Background(), "tool.before.after.execute", 1))

	select {
	case evt := <-sub.C:
		assert.Equal(t, "tool.before.after.execute", evt.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected delivery")
	}
}

func TestDropOldestEvictsOldestOnOverflow(t *testing.T) {
	b := eventbus.New()
	sub, err := b.Subscribe("x", 1, eventbus.DropOldest)
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "x", "first"))
	require.NoError(t, b.Publish(ctx, "x", "second"))

	evt := <-sub.C
	assert.Equal(t, "second", evt.Payload)

	m := b.MetricsFor("x")
	assert.Equal(t, int64(1), m.Dropped)
}

func TestDropNewestKeepsBuffered(t *testing.T) {
	b := eventbus.New()
	sub, err := b.Subscribe("x", 1, eventbus.DropNewest)
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "x", "first"))
	require.NoError(t, b.Publish(ctx, "x", "second"))

	evt := <-sub.C
	assert.Equal(t, "first", evt.Payload)
}

func TestBlockWaitsForRoom(t *testing.T) {
	b := eventbus.New()
	sub, err := b.Subscribe("x", 1, eventbus.Block)
	require.NoError(t, err)
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "x", "first"))

	done := make(chan struct{})
	go func() {
		require.NoError(t, b.Publish(ctx, "x", "second"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("publish should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	<-sub.C // drain "first", unblocking the publisher
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after drain")
	}
}

func TestMetricsCountPublishedAndDelivered(t *testing.T) {
	b := eventbus.New()
	sub, err := b.Subscribe("x", 4, eventbus.DropOldest)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(context.Background(), "x", 1))
	<-sub.C

	m := b.MetricsFor("x")
	assert.Equal(t, int64(1), m.Published)
	assert.Equal(t, int64(1), m.Delivered)
}

func TestCloseStopsDelivery(t *testing.T) {
	b := eventbus.New()
	sub, err := b.Subscribe("x", 4, eventbus.DropOldest)
	require.NoError(t, err)
	sub.Close()

	_, open := <-sub.C
	assert.False(t, open)
}
