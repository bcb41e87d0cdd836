package kernel_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/kernelspell/bridge"
	"github.com/lexlapax/kernelspell/debug"
	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/eventbus"
	"github.com/lexlapax/kernelspell/hooks"
	"github.com/lexlapax/kernelspell/kernel"
	"github.com/lexlapax/kernelspell/registry"
	"github.com/lexlapax/kernelspell/session"
	"github.com/lexlapax/kernelspell/state"
	"github.com/lexlapax/kernelspell/storage/memimpl"
)

func newTestBridge(t *testing.T) *bridge.Bridge {
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

func dispatchTo(t *testing.T, h kernel.Handler, protocol kernel.Protocol, content string) (json.RawMessage, error) {
	t.Helper()
	msg := kernel.NewRequest(kernel.Shell, protocol, json.RawMessage(content))
	return h.Handle(context.Background(), msg)
}

func TestStateAdapterSaveLoadDeleteKeys(t *testing.T) {
	b := newTestBridge(t)
	a := kernel.NewStateAdapter(b.Globals().State)

	_, err := dispatchTo(t, a, kernel.ProtocolState, `{"command":"save","scope":"global","key":"greeting","value":"hello"}`)
	require.NoError(t, err)

	result, err := dispatchTo(t, a, kernel.ProtocolState, `{"command":"load","scope":"global","key":"greeting"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"hello"}`, string(result))

	result, err = dispatchTo(t, a, kernel.ProtocolState, `{"command":"keys","scope":"global"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `["greeting"]`, string(result))

	_, err = dispatchTo(t, a, kernel.ProtocolState, `{"command":"delete","scope":"global","key":"greeting"}`)
	require.NoError(t, err)

	result, err = dispatchTo(t, a, kernel.ProtocolState, `{"command":"load","scope":"global","key":"greeting"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null}`, string(result))
}

func TestStateAdapterRejectsUnknownCommand(t *testing.T) {
	b := newTestBridge(t)
	a := kernel.NewStateAdapter(b.Globals().State)

	_, err := dispatchTo(t, a, kernel.ProtocolState, `{"command":"wipe","scope":"global"}`)
	require.Error(t, err)
	assert.Equal(t, errors.Validation, errors.KindOf(err))
}

func TestStateAdapterRejectsMalformedPayload(t *testing.T) {
	b := newTestBridge(t)
	a := kernel.NewStateAdapter(b.Globals().State)

	_, err := dispatchTo(t, a, kernel.ProtocolState, `not json`)
	require.Error(t, err)
	assert.Equal(t, errors.MalformedRequest, errors.KindOf(err))
}

func TestSessionAdapterLifecycle(t *testing.T) {
	b := newTestBridge(t)
	a := kernel.NewSessionAdapter(b.Globals().Session)

	result, err := dispatchTo(t, a, kernel.ProtocolSession, `{"command":"create","name":"probe"}`)
	require.NoError(t, err)
	var meta session.Metadata
	require.NoError(t, json.Unmarshal(result, &meta))
	assert.Equal(t, "probe", meta.Name)

	result, err = dispatchTo(t, a, kernel.ProtocolSession, `{"command":"suspend","id":"`+meta.ID+`"}`)
	require.NoError(t, err)
	var suspended session.Metadata
	require.NoError(t, json.Unmarshal(result, &suspended))
	assert.Equal(t, session.StatusSuspended, suspended.Status)

	result, err = dispatchTo(t, a, kernel.ProtocolSession, `{"command":"resume","id":"`+meta.ID+`"}`)
	require.NoError(t, err)
	var resumed session.Metadata
	require.NoError(t, json.Unmarshal(result, &resumed))
	assert.Equal(t, session.StatusActive, resumed.Status)

	_, err = dispatchTo(t, a, kernel.ProtocolSession, `{"command":"complete","id":"`+meta.ID+`"}`)
	require.NoError(t, err)
}

func TestSessionAdapterSaveLoadRoundTrip(t *testing.T) {
	b := newTestBridge(t)
	a := kernel.NewSessionAdapter(b.Globals().Session)

	result, err := dispatchTo(t, a, kernel.ProtocolSession, `{"command":"create","name":"snapshot-probe"}`)
	require.NoError(t, err)
	var meta session.Metadata
	require.NoError(t, json.Unmarshal(result, &meta))

	_, err = b.State.Set(context.Background(), state.Session(meta.ID), "k", []byte(`{"v":1}`))
	require.NoError(t, err)

	result, err = dispatchTo(t, a, kernel.ProtocolSession, `{"command":"save","id":"`+meta.ID+`"}`)
	require.NoError(t, err)

	result, err = dispatchTo(t, a, kernel.ProtocolSession, `{"command":"load","snapshot":`+string(result)+`}`)
	require.NoError(t, err)
	var restored session.Metadata
	require.NoError(t, json.Unmarshal(result, &restored))
	assert.Equal(t, meta.ID, restored.ID)
	assert.Equal(t, meta.Name, restored.Name)
}

func TestToolAdapterListInfoSearchInvoke(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.Descriptor{
		Metadata: registry.Metadata{Kind: registry.KindTool, Name: "echo", Tags: []string{"text"}},
		Factory: func(ctx context.Context, config json.RawMessage) (any, error) {
			return echoTool{}, nil
		},
	}))

	b := bridge.New(bridge.Config{Components: reg, Hooks: hooks.NewRegistry(time.Second, 5, time.Minute)})
	a := kernel.NewToolAdapter(b.Globals().Tool)

	result, err := dispatchTo(t, a, kernel.ProtocolTool, `{"command":"list"}`)
	require.NoError(t, err)
	var list []registry.Metadata
	require.NoError(t, json.Unmarshal(result, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].Name)

	result, err = dispatchTo(t, a, kernel.ProtocolTool, `{"command":"info","name":"echo"}`)
	require.NoError(t, err)
	var info registry.Metadata
	require.NoError(t, json.Unmarshal(result, &info))
	assert.Equal(t, "echo", info.Name)

	result, err = dispatchTo(t, a, kernel.ProtocolTool, `{"command":"search","query":"echo"}`)
	require.NoError(t, err)
	var found []registry.Metadata
	require.NoError(t, json.Unmarshal(result, &found))
	assert.Len(t, found, 1)

	result, err = dispatchTo(t, a, kernel.ProtocolTool, `{"command":"invoke","name":"echo","params":"hi"}`)
	require.NoError(t, err)
	var v bridge.Value
	require.NoError(t, json.Unmarshal(result, &v))
	assert.Equal(t, "echoed:hi", v.Go())
}

type echoTool struct{}

func (echoTool) Execute(ctx context.Context, input bridge.Value, execCtx map[string]any) (bridge.Value, error) {
	s, _ := input.Go().(string)
	return bridge.Of("echoed:" + s)
}

func TestContextAdapterAssemble(t *testing.T) {
	b := bridge.New(bridge.Config{
		Hooks:      hooks.NewRegistry(time.Second, 5, time.Minute),
		ContextAsm: fakeAssembler{},
	})
	a := kernel.NewContextAdapter(b.Globals().Context)

	result, err := dispatchTo(t, a, kernel.ProtocolContext, `{"query":"q","strategy":"recency","budget":100}`)
	require.NoError(t, err)
	var assembled bridge.Assembled
	require.NoError(t, json.Unmarshal(result, &assembled))
	assert.Equal(t, 42, assembled.TokenCount)
}

type fakeAssembler struct{}

func (fakeAssembler) Assemble(ctx context.Context, query, strategy string, budget int, sessionID string) (bridge.Assembled, error) {
	return bridge.Assembled{TokenCount: 42}, nil
}

func (fakeAssembler) StrategyStats(ctx context.Context) ([]bridge.StrategyStats, error) {
	return nil, nil
}

func TestDebugAdapterSetBreakpointsAndQuery(t *testing.T) {
	b := bridge.New(bridge.Config{Hooks: hooks.NewRegistry(time.Second, 5, time.Minute)})
	table := debug.NewTable()
	ctl := debug.NewController(table, nil)
	b.EnableDebug("sess-1", ctl)

	a := kernel.NewDebugAdapter(b.Globals().Debug, table)

	_, err := dispatchTo(t, a, kernel.ProtocolDebug,
		`{"command":"SetBreakpoints","source":"main.lua","breakpoints":[{"id":"bp1","line":10}],"script_session":"sess-1"}`)
	require.NoError(t, err)
	assert.Len(t, table.MatchingAt("main.lua", 10), 1)

	result, err := dispatchTo(t, a, kernel.ProtocolDebug, `{"command":"GetDebugState","script_session":"sess-1"}`)
	require.NoError(t, err)
	var state map[string]any
	require.NoError(t, json.Unmarshal(result, &state))
	assert.Equal(t, false, state["paused"])
}

func TestDebugAdapterUnknownSessionIsNotFound(t *testing.T) {
	b := bridge.New(bridge.Config{Hooks: hooks.NewRegistry(time.Second, 5, time.Minute)})
	table := debug.NewTable()
	a := kernel.NewDebugAdapter(b.Globals().Debug, table)

	_, err := dispatchTo(t, a, kernel.ProtocolDebug, `{"command":"Continue","script_session":"missing"}`)
	require.Error(t, err)
	assert.Equal(t, errors.NotFound, errors.KindOf(err))
}
