// Package debug implements the Execution Control subsystem of spec §2
// ("Execution Control (~12%)") and §4.4: a breakpoint table, step/continue
// state machine, variable inspector, and call stack model, all driven by
// line/function-enter/function-exit/exception hooks the Scripting Bridge
// installs in the interpreter. It is grounded on the interpreter-hook
// wiring of agents/runtime/policy/policy.go's decision shape (generalized
// from "should this tool call proceed" to "should this line-event pause
// execution") and on original_source/llmspell-debug/src/condition_eval.rs
// for the synthetic-symbol and fail-safe-pause contract.
package debug

import "context"

// State is a per-session debug state (spec §4.4 "State machine per
// session").
type State string

const (
	Running  State = "running"
	Paused   State = "paused"
	Stepping State = "stepping"
	Stopped  State = "stopped"
)

// PauseReason records why a session transitioned into Paused.
type PauseReason string

const (
	ReasonBreakpoint   PauseReason = "breakpoint"
	ReasonStep         PauseReason = "step"
	ReasonUserRequest  PauseReason = "user_request"
	ReasonException    PauseReason = "exception"
)

// StepKind distinguishes the three stepping commands of spec §4.4.
type StepKind string

const (
	StepOver StepKind = "over"
	StepIn   StepKind = "in"
	StepOut  StepKind = "out"
)

// LineEvent is what the Bridge's interpreter line-hook reports to the
// Controller at every source-line transition (spec §4.2 "the Bridge
// installs a line-hook in the interpreter so that each source-line
// transition consults the debug state to decide continue/pause").
type LineEvent struct {
	Source string
	Line   int
	Depth  int
	// Vars is the current variable environment, used both for breakpoint
	// condition evaluation and for the inspector's cache.
	Vars map[string]any
	// FunctionCalled is true when this line-event follows a call. The
	// Controller does not read it: Step In detects a deeper frame through
	// Controller.FunctionEnter.
	FunctionCalled bool
	// FunctionStartedAt reports the microseconds elapsed since the current
	// function frame began, feeding the __function_time_us__ synthetic
	// symbol. It is not serialized.
	FunctionStartedAt func() (elapsedMicros int64) `json:"-"`
	ExecutionCount    int64
}

// Decision is what Controller.OnLine returns: whether the interpreter
// should pause at this line-event, and if so why.
type Decision struct {
	Pause  bool
	Reason PauseReason
}

// HookInstaller is satisfied by the Scripting Bridge so debug can be
// wired in without an import cycle: InstallLineHook and
// InstallCallHooks are only ever called when debug mode is active (spec
// §4.4 performance contract "With debug disabled, the Bridge MUST NOT
// install line hooks").
type HookInstaller interface {
	InstallLineHook(func(ctx context.Context, evt LineEvent) Decision)
	InstallCallHooks(enter, exit func(ctx context.Context, frame Frame))
}
