package bridge_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/kernelspell/bridge"
	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/eventbus"
	"github.com/lexlapax/kernelspell/hooks"
	"github.com/lexlapax/kernelspell/registry"
	"github.com/lexlapax/kernelspell/session"
	"github.com/lexlapax/kernelspell/state"
	"github.com/lexlapax/kernelspell/storage/memimpl"
)

func newBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	sessions := session.New()
	return bridge.New(bridge.Config{
		Components: registry.New(),
		State:      state.New(memimpl.New()),
		Sessions:   sessions,
		Artifacts:  session.NewArtifactStore(sessions),
		Hooks:      hooks.NewRegistry(time.Second, 5, time.Minute),
		Events:     eventbus.New(),
	})
}

func TestValueRoundTripsThroughJSON(t *testing.T) {
	v, err := bridge.Of(map[string]any{
		"name":  "probe",
		"count": float64(3),
		"tags":  []any{"a", "b"},
		"ok":    true,
		"empty": nil,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded bridge.Value
	require.NoError(t, json.Unmarshal(raw, &decoded))

	m, err := bridge.AsMap(decoded)
	require.NoError(t, err)
	assert.Equal(t, "probe", m["name"])
	assert.Equal(t, float64(3), m["count"])
	assert.Equal(t, []any{"a", "b"}, m["tags"])
	assert.Equal(t, true, m["ok"])
	assert.Nil(t, m["empty"])
}

func TestValueOfBytesRoundTripsAsDistinctVariant(t *testing.T) {
	v, err := bridge.Of([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v.Go())
}

func TestValueBytesRoundTripThroughJSON(t *testing.T) {
	v, err := bridge.Of([]byte("payload"))
	require.NoError(t, err)

	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded bridge.Value
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []byte("payload"), decoded.Go())

	// A plain string must not decode as a Bytes variant.
	var str bridge.Value
	require.NoError(t, json.Unmarshal([]byte(`"payload"`), &str))
	assert.Equal(t, "payload", str.Go())
}

func TestAsyncBridgeRejectsReentranceBeyondLimit(t *testing.T) {
	a := bridge.NewAsyncBridge(2)
	ctx := context.Background()

	var call func(ctx context.Context, depth int) (any, error)
	call = func(ctx context.Context, depth int) (any, error) {
		return a.Call(ctx, func(ctx context.Context) (any, error) {
			if depth >= 3 {
				return "reached", nil
			}
			return call(ctx, depth+1)
		})
	}

	_, err := call(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, errors.ResourceLimit, errors.KindOf(err))
}

func TestAsyncBridgeCancellationUnparksCaller(t *testing.T) {
	a := bridge.NewAsyncBridge(8)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	resultCh := make(chan error, 1)
	go func() {
		_, err := a.Call(ctx, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
		resultCh <- err
	}()

	err := <-resultCh
	require.Error(t, err)
	assert.Equal(t, errors.Cancelled, errors.KindOf(err))
	close(release)
}

func TestStateGlobalSaveLoadDelete(t *testing.T) {
	b := newBridge(t)
	g := b.Globals()
	ctx := context.Background()

	v, err := bridge.Of("hello")
	require.NoError(t, err)
	require.NoError(t, g.State.Save(ctx, "global", "greeting", v))

	loaded, ok, err := g.State.Load(ctx, "global", "greeting")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", loaded.Go())

	keys, err := g.State.Keys(ctx, "global")
	require.NoError(t, err)
	assert.Contains(t, keys, "greeting")

	require.NoError(t, g.State.Delete(ctx, "global", "greeting"))
	_, ok, err = g.State.Load(ctx, "global", "greeting")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionGlobalCurrentSessionCell(t *testing.T) {
	b := newBridge(t)
	g := b.Globals()
	ctx := context.Background()

	meta, err := g.Session.Create(ctx, "probe-session", "", nil)
	require.NoError(t, err)

	_, ok := g.Session.GetCurrent()
	assert.False(t, ok, "no current session until explicitly set")

	g.Session.SetCurrent(meta.ID)
	current, ok := g.Session.GetCurrent()
	require.True(t, ok)
	assert.Equal(t, meta.ID, current)
}

func TestArtifactGlobalStoreAndList(t *testing.T) {
	b := newBridge(t)
	g := b.Globals()
	ctx := context.Background()

	meta, err := g.Session.Create(ctx, "artifact-owner", "", nil)
	require.NoError(t, err)

	id, err := g.Artifact.Store(ctx, meta.ID, "tool_result", "out.txt", []byte("data"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Sequence)

	list := g.Artifact.List(ctx, meta.ID)
	require.Len(t, list, 1)
	assert.Equal(t, "out.txt", list[0].Name)
}

func TestHookGlobalRegisterAndUnregister(t *testing.T) {
	b := newBridge(t)
	g := b.Globals()

	var fired bool
	reg := g.Hook.RegisterFunc(hooks.ToolBefore, func(ctx context.Context, hctx hooks.Context) (hooks.Outcome, error) {
		fired = true
		return hooks.Outcome{Kind: hooks.Continue}, nil
	})

	b.Hooks.Sequential(context.Background(), hooks.ToolBefore, hooks.Context{})
	assert.True(t, fired)

	fired = false
	g.Hook.Unregister(reg)
	b.Hooks.Sequential(context.Background(), hooks.ToolBefore, hooks.Context{})
	assert.False(t, fired, "unregistered handler must not run")
}

func TestEventGlobalPublishSubscribe(t *testing.T) {
	b := newBridge(t)
	g := b.Globals()

	sub, err := g.Event.Subscribe("session.*", 4, eventbus.DropOldest)
	require.NoError(t, err)
	defer sub.Close()

	v, err := bridge.Of("payload")
	require.NoError(t, err)
	require.NoError(t, g.Event.Publish(context.Background(), "session.created", v))

	select {
	case evt := <-sub.C:
		assert.Equal(t, "session.created", evt.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected to receive published event")
	}
}
