package kernel_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/kernel"
)

func echoHandler(id string, calls *[]string) kernel.Handler {
	return kernel.HandlerFunc(func(ctx context.Context, msg kernel.UniversalMessage) (json.RawMessage, error) {
		*calls = append(*calls, id)
		return json.Marshal(map[string]string{"handler": id})
	})
}

func TestRouterDirectReplacesPreviousHandler(t *testing.T) {
	r := kernel.NewRouter()
	var calls []string
	r.Register(kernel.ProtocolTool, kernel.Shell, kernel.Direct, echoHandler("first", &calls))
	r.Register(kernel.ProtocolTool, kernel.Shell, kernel.Direct, echoHandler("second", &calls))

	msg := kernel.NewRequest(kernel.Shell, kernel.ProtocolTool, json.RawMessage(`{}`))
	result, err := r.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"handler":"second"}`, string(result))
	assert.Equal(t, []string{"second"}, calls, "registering a second Direct handler must replace, not append")
}

func TestRouterRoundRobinCyclesHandlers(t *testing.T) {
	r := kernel.NewRouter()
	var calls []string
	r.Register(kernel.ProtocolTool, kernel.Shell, kernel.RoundRobin, echoHandler("a", &calls))
	r.Register(kernel.ProtocolTool, kernel.Shell, kernel.RoundRobin, echoHandler("b", &calls))

	msg := kernel.NewRequest(kernel.Shell, kernel.ProtocolTool, json.RawMessage(`{}`))
	for i := 0; i < 4; i++ {
		_, err := r.Dispatch(context.Background(), msg)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, calls)
}

func TestRouterLoadBalancedPrefersLeastLoaded(t *testing.T) {
	r := kernel.NewRouter()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := kernel.HandlerFunc(func(ctx context.Context, msg kernel.UniversalMessage) (json.RawMessage, error) {
		started <- struct{}{}
		<-release
		return json.Marshal(map[string]string{"handler": "slow"})
	})
	var calls []string
	r.Register(kernel.ProtocolTool, kernel.Shell, kernel.LoadBalanced, slow)
	r.Register(kernel.ProtocolTool, kernel.Shell, kernel.LoadBalanced, echoHandler("fast", &calls))

	msg := kernel.NewRequest(kernel.Shell, kernel.ProtocolTool, json.RawMessage(`{}`))

	done := make(chan struct{})
	go func() {
		_, _ = r.Dispatch(context.Background(), msg)
		close(done)
	}()
	<-started // the slow handler is now occupying its route's in-flight slot

	result, err := r.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"handler":"fast"}`, string(result))
	assert.Equal(t, []string{"fast"}, calls, "the idle handler must win over the one already in flight")

	close(release)
	<-done
}

func TestRouterBroadcastFiresEveryHandler(t *testing.T) {
	r := kernel.NewRouter()
	n := 3
	done := make(chan string, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		r.Register(kernel.ProtocolExec, kernel.IOPub, kernel.Broadcast, kernel.HandlerFunc(
			func(ctx context.Context, msg kernel.UniversalMessage) (json.RawMessage, error) {
				done <- id
				return nil, nil
			}))
	}

	msg := kernel.NewRequest(kernel.IOPub, kernel.ProtocolExec, json.RawMessage(`{}`))
	result, err := r.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, result)

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a broadcast handler to fire")
		}
	}
	assert.Len(t, seen, n)
}

func TestRouterDispatchWithNoRouteIsNoHandler(t *testing.T) {
	r := kernel.NewRouter()
	msg := kernel.NewRequest(kernel.Shell, kernel.ProtocolState, json.RawMessage(`{}`))
	_, err := r.Dispatch(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, errors.NoHandler, errors.KindOf(err))
}

func TestRouterRecoversHandlerPanicAsInternalError(t *testing.T) {
	r := kernel.NewRouter()
	r.Register(kernel.ProtocolTool, kernel.Shell, kernel.Direct, kernel.HandlerFunc(
		func(ctx context.Context, msg kernel.UniversalMessage) (json.RawMessage, error) {
			panic("boom")
		}))

	msg := kernel.NewRequest(kernel.Shell, kernel.ProtocolTool, json.RawMessage(`{}`))
	_, err := r.Dispatch(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, errors.Internal, errors.KindOf(err))

	// the kernel itself must survive: a second dispatch still reaches the
	// (still panicking) handler rather than the router being torn down.
	_, err = r.Dispatch(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, errors.Internal, errors.KindOf(err))
}

func TestInProcessTransportRoundTrip(t *testing.T) {
	kernelSide, clientSide := kernel.NewInProcessPair(4)
	ctx := context.Background()

	require.NoError(t, clientSide.Send(ctx, kernel.Frame{Channel: kernel.Shell, Bytes: []byte("ping")}))
	f, err := kernelSide.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, kernel.Shell, f.Channel)
	assert.Equal(t, "ping", string(f.Bytes))

	require.NoError(t, kernelSide.Send(ctx, kernel.Frame{Channel: kernel.Shell, Bytes: []byte("pong")}))
	f, err = clientSide.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(f.Bytes))

	require.NoError(t, kernelSide.Close())
}

func TestHeartbeatEchoesAndTracksLiveness(t *testing.T) {
	hb := kernel.NewHeartbeat(50 * time.Millisecond)
	kernelSide, clientSide := kernel.NewInProcessPair(4)
	ctx := context.Background()

	assert.True(t, hb.Alive(), "a freshly constructed heartbeat starts alive")

	require.NoError(t, clientSide.Send(ctx, kernel.Frame{Channel: kernel.Heartbeat, Bytes: []byte("ping")}))
	f, err := kernelSide.Recv(ctx)
	require.NoError(t, err)

	require.NoError(t, hb.Echo(ctx, kernelSide, f))
	echoed, err := clientSide.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(echoed.Bytes))
	assert.True(t, hb.Alive())

	time.Sleep(80 * time.Millisecond)
	assert.False(t, hb.Alive(), "liveness lapses once the interval has elapsed with no echo")
	assert.True(t, hb.ShouldAlertMissed(), "the first missed check after the interval must alert")
	assert.False(t, hb.ShouldAlertMissed(), "a second immediate check is rate-limited")
}

// S5-style scenario: an input prompt round-trips through a notification
// publish callback and a DeliverReply call (spec §8 S5).
func TestConnectedInputRoundTripsOneReplyPerRequest(t *testing.T) {
	var notifications []kernel.WireNotification
	in := kernel.NewConnectedInput("req-1", func(n kernel.WireNotification) {
		notifications = append(notifications, n)
	})

	result := make(chan string, 1)
	go func() {
		v, err := in.ReadLine(context.Background(), "name?")
		require.NoError(t, err)
		result <- v
	}()

	require.Eventually(t, func() bool { return len(notifications) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "input_request", notifications[0].Content.Event)

	in.DeliverReply("ada")
	assert.Equal(t, "ada", <-result)

	// delivering again with nothing pending must not block or panic.
	in.DeliverReply("stray")
}

func TestConnectedInputRejectsConcurrentRead(t *testing.T) {
	in := kernel.NewConnectedInput("req-1", func(kernel.WireNotification) {})
	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = in.ReadLine(context.Background(), "first")
	}()
	<-started
	require.Eventually(t, func() bool {
		_, err := in.ReadLine(context.Background(), "second")
		return err != nil && errors.KindOf(err) == errors.Validation
	}, time.Second, time.Millisecond)
}

func TestRenderErrorDefaultsToInternalForUnknownError(t *testing.T) {
	we := kernel.RenderError(assertError{})
	require.NotNil(t, we)
	assert.Equal(t, errors.Internal, we.Kind)
}

func TestRenderErrorPreservesKindAndDetails(t *testing.T) {
	err := errors.New(errors.NotFound, "no such tool").WithDetails(map[string]any{"name": "grep"})
	we := kernel.RenderError(err)
	require.NotNil(t, we)
	assert.Equal(t, errors.NotFound, we.Kind)
	assert.Equal(t, "grep", we.Details["name"])
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
