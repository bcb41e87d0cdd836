package debug

import (
	"context"
	"sync"

	"github.com/lexlapax/kernelspell/telemetry"
)

// Controller drives one debugged script session through the state
// machine of spec §4.4: Running/Paused/Stepping/Stopped, with Continue,
// Step Over/In/Out, Pause, and breakpoint set/clear all applying
// immediately per the transition table. A condition primitive (not a
// busy-wait) signals pause/resume, per spec §4.4's performance contract.
type Controller struct {
	mu    sync.Mutex
	state State
	step  StepKind
	// stepDepth is the call-stack depth recorded when a stepping command
	// was issued (spec §4.4: "Step Over: ... on the first line-event whose
	// stack-depth <= depth-at-command"; similarly for Step Out).
	stepDepth      int
	sawCallForStep bool
	reason         PauseReason
	pausedAt       LineEvent
	// resume is closed (and replaced) every time the session leaves Paused,
	// so OnLine can block on it with a select instead of a busy-wait (spec
	// §4.4 "the implementation MUST NOT busy-wait -- pause is signaled via
	// a condition primitive").
	resume chan struct{}

	breakpoints *Table
	stack       *CallStack
	inspector   *Inspector
	executions  int64

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// Option configures optional Controller dependencies.
type Option func(*Controller)

// WithLogger sets the logger OnLine reports pause/resume transitions
// through.
func WithLogger(l telemetry.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics recorder OnLine increments on every
// breakpoint hit and pause/resume transition.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithTracer sets the tracer OnLine starts a span under for every
// line-event.
func WithTracer(t telemetry.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// NewController constructs a Controller starting in the Running state.
// Telemetry dependencies default to no-ops when not supplied via Option.
func NewController(breakpoints *Table, inspector *Inspector, opts ...Option) *Controller {
	c := &Controller{
		state:       Running,
		breakpoints: breakpoints,
		stack:       NewCallStack(),
		inspector:   inspector,
		resume:      make(chan struct{}),
		logger:      telemetry.NoopLogger{},
		metrics:     telemetry.NoopMetrics{},
		tracer:      telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wake closes and replaces the resume channel, releasing every goroutine
// currently blocked in OnLine's pause wait. Caller must hold c.mu.
func (c *Controller) wake() {
	close(c.resume)
	c.resume = make(chan struct{})
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Continue resumes a Paused or Stepping session (spec §4.4 "Continue:
// Paused/Stepping -> Running").
func (c *Controller) Continue() {
	c.mu.Lock()
	c.state = Running
	c.wake()
	c.mu.Unlock()
}

// Pause requests that the session stop at the next line-event (spec §4.4
// "Pause: Running -> Paused{UserRequest} at the next line-event"). The
// actual transition happens inside OnLine once a line-event arrives.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state == Running {
		c.reason = ReasonUserRequest
		c.step = ""
	}
	c.mu.Unlock()
}

// Step requests a stepping command; the transition to Paused happens in
// OnLine once the step's completion condition is met.
func (c *Controller) Step(kind StepKind) {
	c.mu.Lock()
	c.state = Stepping
	c.step = kind
	c.stepDepth = c.stack.Depth()
	c.sawCallForStep = false
	c.wake()
	c.mu.Unlock()
}

// Stop transitions to the terminal Stopped state; the session can no
// longer be resumed.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.state = Stopped
	c.wake()
	c.mu.Unlock()
}

// FunctionEnter pushes a call frame and marks a step-in as having crossed
// a call boundary.
func (c *Controller) FunctionEnter(source, function string, line int) Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sawCallForStep = true
	return c.stack.Push(source, function, line)
}

// FunctionExit pops the innermost call frame.
func (c *Controller) FunctionExit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack.Pop()
}

// CallStack returns a snapshot of the live call stack, innermost first.
func (c *Controller) CallStack() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stack.Frames()
}

// OnLine is invoked by the Bridge's interpreter line-hook at every
// source-line transition (spec §4.2/§4.4). It evaluates breakpoints,
// advances any pending step, blocks the calling (script) goroutine while
// Paused by waiting on the resume channel rather than busy-waiting, and returns
// once the session is cleared to proceed.
func (c *Controller) OnLine(ctx context.Context, evt LineEvent) Decision {
	ctx, span := c.tracer.Start(ctx, "debug.Controller.OnLine")
	defer span.End()

	c.mu.Lock()
	c.executions++
	evt.ExecutionCount = c.executions
	c.stack.UpdateTopLine(evt.Line)
	depth := c.stack.Depth()
	c.mu.Unlock()

	if c.inspector != nil {
		c.inspector.Invalidate()
	}

	decision := Decision{}
	if fire := c.breakpoints.EvaluateLine(evt); fire.Fired {
		decision = Decision{Pause: true, Reason: ReasonBreakpoint}
		c.metrics.IncCounter("debug.breakpoint_hit", 1, "source", evt.Source)
		c.logger.Info(ctx, "breakpoint hit", "source", evt.Source, "line", evt.Line)
	}

	c.mu.Lock()
	if !decision.Pause {
		switch c.state {
		case Stepping:
			switch c.step {
			case StepOver:
				if depth <= c.stepDepth {
					decision = Decision{Pause: true, Reason: ReasonStep}
				}
			case StepIn:
				if c.sawCallForStep || depth == c.stepDepth {
					decision = Decision{Pause: true, Reason: ReasonStep}
				}
			case StepOut:
				if depth < c.stepDepth {
					decision = Decision{Pause: true, Reason: ReasonStep}
				}
			}
		case Paused:
			decision = Decision{Pause: true, Reason: c.reason}
		default:
			if c.reason == ReasonUserRequest {
				decision = Decision{Pause: true, Reason: ReasonUserRequest}
			}
		}
	}

	if decision.Pause {
		c.state = Paused
		c.reason = decision.Reason
		c.pausedAt = evt
	}

	for c.state == Paused {
		wait := c.resume
		c.mu.Unlock()
		select {
		case <-wait:
			c.mu.Lock()
		case <-ctx.Done():
			c.mu.Lock()
			c.state = Stopped
			c.mu.Unlock()
			return Decision{}
		}
	}
	c.reason = ""
	c.mu.Unlock()

	return decision
}

// PausedAt returns the line-event the session is currently paused at, and
// whether it is in fact paused.
func (c *Controller) PausedAt() (LineEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedAt, c.state == Paused
}
