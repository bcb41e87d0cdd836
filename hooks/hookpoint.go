// Package hooks implements the Hook Registry & Executor of spec §2
// ("Hook Registry & Executor (~7%)") and §4.6: named hook-points with
// ordered handlers, Sequential/Parallel composition with a fixed-priority
// result merge, and a per-hook circuit breaker. It is rewritten from the
// event-bus shape of agents/runtime/hooks/{hooks.go,events.go} generalized
// from a fixed event taxonomy to spec's extensible hook-point enum and
// outcome-returning handler contract.
package hooks

import "context"

// Point names an instrumented site a Handler can register against (spec
// §4.6). The set is extensible; callers may register handlers against a
// custom Point value, but the well-known points below are emitted by the
// kernel and bridge themselves.
type Point string

const (
	SessionCreated   Point = "session.created"
	SessionSuspended Point = "session.suspended"
	SessionResumed   Point = "session.resumed"
	SessionCompleted Point = "session.completed"
	ToolBefore       Point = "tool.before"
	ToolAfter        Point = "tool.after"
	AgentBefore      Point = "agent.before"
	AgentAfter       Point = "agent.after"
	WorkflowStepBefore Point = "workflow.step.before"
	WorkflowStepAfter  Point = "workflow.step.after"
	StateBeforeWrite Point = "state.before_write"
	StateAfterWrite  Point = "state.after_write"
	SystemStartup    Point = "system.startup"
	SystemShutdown   Point = "system.shutdown"
)

// Context carries the payload a hook handler observes and may modify. The
// component fields identify what fired the hook (spec §3 "HookExecution").
type Context struct {
	CorrelationID string
	ComponentType string
	ComponentID   string
	Data          map[string]any
}

// OutcomeKind enumerates the outcomes a handler may return (spec §4.6).
type OutcomeKind string

const (
	Continue   OutcomeKind = "Continue"
	Modified   OutcomeKind = "Modified"
	Cancel     OutcomeKind = "Cancel"
	Replace    OutcomeKind = "Replace"
	Redirect   OutcomeKind = "Redirect"
	Retry      OutcomeKind = "Retry"
	Fork       OutcomeKind = "Fork"
	Cache      OutcomeKind = "Cache"
	Skipped    OutcomeKind = "Skipped"
)

// Outcome is the sum-typed result of a single handler invocation.
type Outcome struct {
	Kind OutcomeKind

	// Modified / Replace / Cache carry a payload.
	Data map[string]any

	// Cancel carries a human-readable reason.
	Reason string

	// Redirect names a new target component/handler.
	Target string

	// Retry carries a delay and an attempt cap.
	RetryAfter   int // milliseconds
	RetryMaxTime int

	// Fork names the branches to execute.
	Branches []string

	// Cache carries a key and a ttl in seconds.
	CacheKey string
	CacheTTL int
}

// priority implements the fixed merge order of spec §4.6: "Cancel >
// Replace > Redirect > Fork > Retry > Modified > Cache > Skipped > Continue".
var priority = map[OutcomeKind]int{
	Cancel:   8,
	Replace:  7,
	Redirect: 6,
	Fork:     5,
	Retry:    4,
	Modified: 3,
	Cache:    2,
	Skipped:  1,
	Continue: 0,
}

// Handler is the contract every registered hook satisfies.
type Handler interface {
	Handle(ctx context.Context, hctx Context) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, hctx Context) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, hctx Context) (Outcome, error) {
	return f(ctx, hctx)
}
