package replay

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/hooks"
	"github.com/lexlapax/kernelspell/state"
	"github.com/lexlapax/kernelspell/storage/memimpl"
	"github.com/lexlapax/kernelspell/telemetry"
)

// Mode selects how Engine.Replay re-executes a timeline (spec §4.3.3).
type Mode string

const (
	ModeExact    Mode = "exact"
	ModeSimulate Mode = "simulate"
	ModeDebug    Mode = "debug"
)

// Config configures a single replay run (spec §4.3.3 "config ∈ {mode,
// compare_results, stop_on_error, target_timestamp?, timeout}").
type Config struct {
	Mode            Mode
	CompareResults  bool
	StopOnError     bool
	TargetTimestamp time.Time // zero means replay the full timeline
	Timeout         time.Duration
}

// whitelistedFields lists the HookExecution fields allowed to differ
// between a recorded and replayed execution without counting as a
// divergence (spec §4.3.3 "a whitelist of fields that may legitimately
// differ (timestamps, ids)").
var whitelistedFields = []string{"id", "started_at", "finished_at"}

// Comparison is the result of comparing a recorded outcome against its
// replayed counterpart.
type Comparison struct {
	Diverged    bool
	Differences []string
	Whitelisted []string
}

// Compare reports whether replayed matches original after whitelisting
// timestamp/id-shaped differences (spec §4.3.3 "compare(original_result,
// replayed_result) -> ComparisonResult").
func Compare(original, replayed hooks.Outcome) Comparison {
	c := Comparison{Whitelisted: append([]string(nil), whitelistedFields...)}
	if original.Kind != replayed.Kind {
		c.Differences = append(c.Differences, "kind")
	}
	if !jsonEqual(original.Data, replayed.Data) {
		c.Differences = append(c.Differences, "data")
	}
	if original.Target != replayed.Target {
		c.Differences = append(c.Differences, "target")
	}
	if original.CacheKey != replayed.CacheKey {
		c.Differences = append(c.Differences, "cache_key")
	}
	c.Diverged = len(c.Differences) > 0
	return c
}

func jsonEqual(a, b map[string]any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// Replayed pairs a recorded HookExecution with its replayed outcome and
// comparison (if CompareResults was requested).
type Replayed struct {
	Recorded   HookExecution
	Outcome    hooks.Outcome
	Comparison *Comparison
}

// Result is what Engine.Replay returns.
type Result struct {
	SessionID string
	Mode      Mode
	Steps     []Replayed
}

// Executor re-runs a single recorded hook execution against the shadow
// state and returns the outcome it produces now. Callers supply this so
// the replay package stays independent of how hooks are actually wired to
// handlers.
type Executor func(ctx context.Context, shadow *state.Store, exec HookExecution) (hooks.Outcome, error)

// Controller holds the pause/step/speed controls of spec §4.3.3
// ("Controls: pause, resume, step_next, set_speed(multiplier),
// add_breakpoint, remove_breakpoint").
type Controller struct {
	mu           sync.Mutex
	paused       bool
	stepRequests int
	speed        float64
	breakpoints  map[int]bool // indices into the timeline
}

// NewController returns a Controller running at normal (1x) speed.
func NewController() *Controller {
	return &Controller{speed: 1.0, breakpoints: make(map[int]bool)}
}

func (c *Controller) Pause()  { c.mu.Lock(); c.paused = true; c.mu.Unlock() }
func (c *Controller) Resume() { c.mu.Lock(); c.paused = false; c.mu.Unlock() }

// StepNext allows exactly one more step to proceed even while paused.
func (c *Controller) StepNext() {
	c.mu.Lock()
	c.stepRequests++
	c.mu.Unlock()
}

// SetSpeed scales the inter-step delay derived from recorded timestamps.
func (c *Controller) SetSpeed(multiplier float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if multiplier <= 0 {
		multiplier = 1.0
	}
	c.speed = multiplier
}

func (c *Controller) AddBreakpoint(stepIndex int) {
	c.mu.Lock()
	c.breakpoints[stepIndex] = true
	c.mu.Unlock()
}

func (c *Controller) RemoveBreakpoint(stepIndex int) {
	c.mu.Lock()
	delete(c.breakpoints, stepIndex)
	c.mu.Unlock()
}

// awaitStep blocks until the controller admits step i to run, honoring
// pause/step_next/breakpoints, or returns ctx.Err() if ctx is cancelled
// first.
func (c *Controller) awaitStep(ctx context.Context, i int) error {
	for {
		c.mu.Lock()
		blocked := c.paused || c.breakpoints[i]
		if blocked && c.stepRequests > 0 {
			c.stepRequests--
			blocked = false
		}
		c.mu.Unlock()

		if !blocked {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Engine is the Replay Engine of spec §2/§4.3.3.
type Engine struct {
	log *Log

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// Option configures optional Engine dependencies.
type Option func(*Engine)

// WithLogger sets the logger Replay reports step progress and divergences
// through.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics recorder Replay increments per step and on
// divergence.
func WithMetrics(m telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer Replay starts a span under per step.
func WithTracer(t telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine binds an Engine to the log it reads recorded executions from.
// Telemetry dependencies default to no-ops when not supplied via Option.
func NewEngine(log *Log, opts ...Option) *Engine {
	e := &Engine{
		log:     log,
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
		tracer:  telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CanReplay reports spec §4.3.3's "can_replay(session_id) -> bool".
func (e *Engine) CanReplay(correlationID string) bool {
	return e.log.CanReplay(correlationID)
}

// Timeline returns the recorded executions for correlationID in finish
// order.
func (e *Engine) Timeline(correlationID string) []HookExecution {
	return e.log.Timeline(correlationID)
}

// Replay re-executes correlationID's recorded timeline against a shadow
// state store that never touches committed state (spec §4.3.3 "Replay
// MUST NOT alter committed state; it operates on a shadow context").
// baseState, if non-nil, seeds the shadow overlay so replayed hooks see
// the same state values the original execution observed.
func (e *Engine) Replay(ctx context.Context, correlationID string, cfg Config, baseState map[string]json.RawMessage, controller *Controller, exec Executor) (Result, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if controller == nil {
		controller = NewController()
	}

	ctx, span := e.tracer.Start(ctx, "replay.Engine.Replay")
	defer span.End()
	e.logger.Info(ctx, "replay starting", "correlation_id", correlationID, "mode", string(cfg.Mode))

	timeline := e.log.Timeline(correlationID)
	if !cfg.TargetTimestamp.IsZero() {
		cut := sort.Search(len(timeline), func(i int) bool {
			return timeline[i].FinishedAt.After(cfg.TargetTimestamp)
		})
		timeline = timeline[:cut]
	}

	shadow := state.New(memimpl.New())
	seedShadow(ctx, shadow, baseState)

	result := Result{SessionID: correlationID, Mode: cfg.Mode}
	var prevFinished time.Time
	for i, recorded := range timeline {
		if err := controller.awaitStep(ctx, i); err != nil {
			return result, err
		}
		if !prevFinished.IsZero() && cfg.Mode != ModeDebug {
			gap := recorded.FinishedAt.Sub(prevFinished)
			if gap > 0 {
				sleepScaled(ctx, gap, controller)
			}
		}
		prevFinished = recorded.FinishedAt

		outcome, err := exec(ctx, shadow, recorded)
		if err != nil {
			wrapped := errors.Wrap(errors.Internal, "replay execution failed", err)
			span.RecordError(wrapped)
			return result, wrapped
		}
		e.metrics.IncCounter("replay.step", 1, "mode", string(cfg.Mode))

		step := Replayed{Recorded: recorded, Outcome: outcome}
		if cfg.CompareResults || cfg.Mode == ModeExact {
			cmp := Compare(recorded.Outcome, outcome)
			step.Comparison = &cmp
			if cmp.Diverged {
				e.metrics.IncCounter("replay.divergence", 1, "mode", string(cfg.Mode))
				e.logger.Warn(ctx, "replayed outcome diverged", "correlation_id", correlationID, "at", recorded.ID)
			}
			if cfg.Mode == ModeExact && cmp.Diverged && cfg.StopOnError {
				result.Steps = append(result.Steps, step)
				err := errors.New(errors.ReplayDivergence, "replayed outcome diverged from recorded outcome").
					WithDetails(map[string]any{"at": recorded.ID})
				span.RecordError(err)
				return result, err
			}
		}
		result.Steps = append(result.Steps, step)
	}
	e.logger.Info(ctx, "replay finished", "correlation_id", correlationID, "steps", len(result.Steps))
	return result, nil
}

func seedShadow(ctx context.Context, shadow *state.Store, base map[string]json.RawMessage) {
	for k, v := range base {
		_, _ = shadow.Set(ctx, state.Global(), k, v)
	}
}

func sleepScaled(ctx context.Context, gap time.Duration, controller *Controller) {
	controller.mu.Lock()
	speed := controller.speed
	controller.mu.Unlock()
	if speed <= 0 {
		speed = 1
	}
	d := time.Duration(float64(gap) / speed)
	const maxDelay = 200 * time.Millisecond
	if d > maxDelay {
		d = maxDelay
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
