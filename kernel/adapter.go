package kernel

import (
	"context"
	"encoding/json"

	"github.com/lexlapax/kernelspell/bridge"
	"github.com/lexlapax/kernelspell/debug"
	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/session"
)

// ProtocolAdapter validates and converts a wire payload to a Request
// UniversalMessage and renders a Handler's result back to wire bytes
// (spec §4.1 step 2 and step 5). The execute, debug, tool, state, session
// and context subprotocols each have their own ProtocolAdapter, registered
// against the Router under its Protocol; this package has no adapter for
// the memory subprotocol.
type ProtocolAdapter interface {
	Protocol() Protocol
	Handler
}

// execContent is the payload shape of spec §6's Exec.execute adapter.
type execContent struct {
	Code         string `json:"code"`
	Silent       bool   `json:"silent,omitempty"`
	StoreHistory bool   `json:"store_history,omitempty"`
	StopOnError  bool   `json:"stop_on_error,omitempty"`
}

type execResult struct {
	ExecutionCount int64 `json:"execution_count"`
	Result         any   `json:"result"`
}

// ScriptRunner executes a script body and returns its result value; the
// concrete interpreter embedding is an external collaborator (spec §1),
// so ExecAdapter depends only on this narrow function type.
type ScriptRunner func(ctx context.Context, code string) (any, error)

// ExecAdapter implements spec §6's Exec.execute adapter.
type ExecAdapter struct {
	run      ScriptRunner
	counter  int64
	nextExec func() int64
}

// NewExecAdapter constructs an ExecAdapter that runs scripts with run,
// stamping each with a monotonically increasing execution_count.
func NewExecAdapter(run ScriptRunner) *ExecAdapter {
	a := &ExecAdapter{run: run}
	a.nextExec = func() int64 {
		a.counter++
		return a.counter
	}
	return a
}

func (a *ExecAdapter) Protocol() Protocol { return ProtocolExec }

func (a *ExecAdapter) Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	var c execContent
	if err := json.Unmarshal(msg.Content, &c); err != nil {
		return nil, errors.Wrap(errors.MalformedRequest, "malformed exec.execute payload", err)
	}
	result, err := a.run(ctx, c.Code)
	if err != nil {
		return nil, err
	}
	return json.Marshal(execResult{ExecutionCount: a.nextExec(), Result: result})
}

// toolContent is the payload shape of spec §6's Tool adapter: "commands
// list|info|search|invoke with fields {name?, query?, category?, params?}".
type toolContent struct {
	Command  string          `json:"command"`
	Name     string          `json:"name,omitempty"`
	Query    string          `json:"query,omitempty"`
	Category string          `json:"category,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// ToolAdapter implements spec §6's Tool adapter over the Bridge's Tool
// global.
type ToolAdapter struct {
	tool *bridge.ToolGlobal
}

// NewToolAdapter constructs a ToolAdapter bound to a Bridge's Tool global.
func NewToolAdapter(tool *bridge.ToolGlobal) *ToolAdapter {
	return &ToolAdapter{tool: tool}
}

func (a *ToolAdapter) Protocol() Protocol { return ProtocolTool }

func (a *ToolAdapter) Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	var c toolContent
	if err := json.Unmarshal(msg.Content, &c); err != nil {
		return nil, errors.Wrap(errors.MalformedRequest, "malformed tool payload", err)
	}
	switch c.Command {
	case "list":
		return json.Marshal(a.tool.List(nil))
	case "info":
		info, err := a.tool.Info(c.Name)
		if err != nil {
			return nil, err
		}
		return json.Marshal(info)
	case "search":
		return json.Marshal(a.tool.Search(c.Query))
	case "invoke":
		var params bridge.Value
		if len(c.Params) > 0 {
			if err := json.Unmarshal(c.Params, &params); err != nil {
				return nil, errors.Wrap(errors.MalformedRequest, "malformed tool.invoke params", err)
			}
		}
		result, err := a.tool.Invoke(ctx, c.Name, params)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	default:
		return nil, errors.New(errors.Validation, "unknown tool command: "+c.Command)
	}
}

// stateContent is the payload shape of spec §6's State adapter:
// "save|load|delete|keys with {scope, key?, value?}".
type stateContent struct {
	Command string          `json:"command"`
	Scope   string          `json:"scope"`
	Key     string          `json:"key,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// StateAdapter implements spec §6's State adapter over the Bridge's State
// global.
type StateAdapter struct {
	state *bridge.StateGlobal
}

// NewStateAdapter constructs a StateAdapter bound to a Bridge's State
// global.
func NewStateAdapter(state *bridge.StateGlobal) *StateAdapter {
	return &StateAdapter{state: state}
}

func (a *StateAdapter) Protocol() Protocol { return ProtocolState }

func (a *StateAdapter) Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	var c stateContent
	if err := json.Unmarshal(msg.Content, &c); err != nil {
		return nil, errors.Wrap(errors.MalformedRequest, "malformed state payload", err)
	}
	switch c.Command {
	case "save":
		var v bridge.Value
		if len(c.Value) > 0 {
			if err := json.Unmarshal(c.Value, &v); err != nil {
				return nil, errors.Wrap(errors.MalformedRequest, "malformed state.save value", err)
			}
		}
		if err := a.state.Save(ctx, c.Scope, c.Key, v); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"ok": true})
	case "load":
		v, ok, err := a.state.Load(ctx, c.Scope, c.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return json.Marshal(map[string]any{"value": nil})
		}
		return json.Marshal(map[string]any{"value": v})
	case "delete":
		if err := a.state.Delete(ctx, c.Scope, c.Key); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"ok": true})
	case "keys":
		keys, err := a.state.Keys(ctx, c.Scope)
		if err != nil {
			return nil, err
		}
		return json.Marshal(keys)
	default:
		return nil, errors.New(errors.Validation, "unknown state command: "+c.Command)
	}
}

// sessionContent is the payload shape of spec §6's Session adapter:
// "create|get|list|suspend|resume|complete|load|save".
type sessionContent struct {
	Command     string            `json:"command"`
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Status      string            `json:"status,omitempty"`
	Snapshot    *session.Snapshot `json:"snapshot,omitempty"`
}

// SessionAdapter implements spec §6's Session adapter over the Bridge's
// Session global.
type SessionAdapter struct {
	sess *bridge.SessionGlobal
}

// NewSessionAdapter constructs a SessionAdapter bound to a Bridge's
// Session global.
func NewSessionAdapter(sess *bridge.SessionGlobal) *SessionAdapter {
	return &SessionAdapter{sess: sess}
}

func (a *SessionAdapter) Protocol() Protocol { return ProtocolSession }

func (a *SessionAdapter) Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	var c sessionContent
	if err := json.Unmarshal(msg.Content, &c); err != nil {
		return nil, errors.Wrap(errors.MalformedRequest, "malformed session payload", err)
	}
	switch c.Command {
	case "create":
		meta, err := a.sess.Create(ctx, c.Name, c.Description, c.Tags)
		if err != nil {
			return nil, err
		}
		return json.Marshal(meta)
	case "get":
		meta, err := a.sess.Get(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(meta)
	case "list":
		return json.Marshal(a.sess.List(ctx, session.Status(c.Status)))
	case "suspend":
		meta, err := a.sess.Suspend(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(meta)
	case "resume":
		meta, err := a.sess.Resume(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(meta)
	case "complete":
		meta, err := a.sess.Complete(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(meta)
	case "save":
		snap, err := a.sess.Save(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	case "load":
		if c.Snapshot == nil {
			return nil, errors.New(errors.Validation, "load requires a snapshot payload")
		}
		meta, err := a.sess.Load(ctx, *c.Snapshot)
		if err != nil {
			return nil, err
		}
		return json.Marshal(meta)
	default:
		return nil, errors.New(errors.Validation, "unknown session command: "+c.Command)
	}
}

// contextContent is the payload shape of spec §6's Context.assemble
// adapter.
type contextContent struct {
	Query     string `json:"query"`
	Strategy  string `json:"strategy"`
	Budget    int    `json:"budget"`
	SessionID string `json:"session_id,omitempty"`
}

// ContextAdapter implements spec §6's Context.assemble adapter over the
// Bridge's Context global.
type ContextAdapter struct {
	ctxGlobal *bridge.ContextGlobal
}

// NewContextAdapter constructs a ContextAdapter bound to a Bridge's
// Context global.
func NewContextAdapter(ctxGlobal *bridge.ContextGlobal) *ContextAdapter {
	return &ContextAdapter{ctxGlobal: ctxGlobal}
}

func (a *ContextAdapter) Protocol() Protocol { return ProtocolContext }

func (a *ContextAdapter) Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	var c contextContent
	if err := json.Unmarshal(msg.Content, &c); err != nil {
		return nil, errors.Wrap(errors.MalformedRequest, "malformed context.assemble payload", err)
	}
	assembled, err := a.ctxGlobal.Assemble(ctx, c.Query, c.Strategy, c.Budget, c.SessionID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(assembled)
}

// debugContent is the payload shape of spec §6's Debug adapter commands:
// "SetBreakpoints{source, breakpoints:[(line, condition?)]}, Step{kind},
// Continue, Pause, InspectVariables{names, frame_id?}, GetDebugState".
type debugContent struct {
	Command       string           `json:"command"`
	Source        string           `json:"source,omitempty"`
	Breakpoints   []wireBreakpoint `json:"breakpoints,omitempty"`
	Kind          debug.StepKind   `json:"kind,omitempty"`
	ScriptSession string           `json:"script_session"`
}

type wireBreakpoint struct {
	ID        string `json:"id"`
	Line      int    `json:"line"`
	Condition string `json:"condition,omitempty"`
}

// DebugAdapter implements spec §6's Debug adapter over the Bridge's Debug
// global and a shared breakpoint Table.
type DebugAdapter struct {
	dbg   *bridge.DebugGlobal
	table *debug.Table
}

// NewDebugAdapter constructs a DebugAdapter bound to a Bridge's Debug
// global and the breakpoint table it shares with every debug session.
func NewDebugAdapter(dbg *bridge.DebugGlobal, table *debug.Table) *DebugAdapter {
	return &DebugAdapter{dbg: dbg, table: table}
}

func (a *DebugAdapter) Protocol() Protocol { return ProtocolDebug }

func (a *DebugAdapter) Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	var c debugContent
	if err := json.Unmarshal(msg.Content, &c); err != nil {
		return nil, errors.Wrap(errors.MalformedRequest, "malformed debug payload", err)
	}
	switch c.Command {
	case "SetBreakpoints":
		a.dbg.ClearSource(a.table, c.Source)
		for _, wbp := range c.Breakpoints {
			a.table.Set(&debug.Breakpoint{
				ID:        wbp.ID,
				Source:    c.Source,
				Line:      wbp.Line,
				Condition: wbp.Condition,
				Enabled:   true,
			})
		}
		return json.Marshal(map[string]any{"ok": true})
	case "Step":
		if err := a.dbg.Step(c.ScriptSession, c.Kind); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"ok": true})
	case "Continue":
		if err := a.dbg.Continue(c.ScriptSession); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"ok": true})
	case "Pause":
		if err := a.dbg.Pause(c.ScriptSession); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"ok": true})
	case "GetDebugState":
		evt, paused, err := a.dbg.PausedAt(c.ScriptSession)
		if err != nil {
			return nil, err
		}
		stack, err := a.dbg.CallStack(c.ScriptSession)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"paused": paused, "at": evt, "call_stack": stack})
	default:
		return nil, errors.New(errors.Validation, "unknown debug command: "+c.Command)
	}
}
