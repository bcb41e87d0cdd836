package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/telemetry"
)

// registration pairs a Handler with its circuit breaker and registration
// order (used to break Broadcast/merge ties, spec §4.6).
type registration struct {
	id      uint64
	handler Handler
	breaker *CircuitBreaker
}

// Registry holds the ordered handler list for every hook point (spec §4.6
// "Hooks at a point are an ordered list").
type Registry struct {
	mu               sync.RWMutex
	points           map[Point][]*registration
	nextID           uint64
	budget           time.Duration // per-hook execution budget (spec §5)
	breakerThreshold int
	breakerReset     time.Duration

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// Option configures optional Registry dependencies.
type Option func(*Registry)

// WithLogger sets the logger invoke reports budget timeouts and circuit
// breaker rejections through.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics recorder invoke increments for breaker
// rejections, timeouts, and per-hook outcomes.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTracer sets the tracer invoke starts a span under for every hook
// execution.
func WithTracer(t telemetry.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// NewRegistry constructs an empty Registry. budget bounds a single handler
// invocation (spec §5 "Hooks have per-hook execution budgets enforced by
// the Executor; over-budget hooks are cancelled and recorded as failures").
// Telemetry dependencies default to no-ops when not supplied via Option.
func NewRegistry(budget time.Duration, breakerThreshold int, breakerReset time.Duration, opts ...Option) *Registry {
	if budget <= 0 {
		budget = 5 * time.Second
	}
	r := &Registry{
		points:           make(map[Point][]*registration),
		budget:           budget,
		breakerThreshold: breakerThreshold,
		breakerReset:     breakerReset,
		logger:           telemetry.NoopLogger{},
		metrics:          telemetry.NoopMetrics{},
		tracer:           telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registered is the handle returned by Register; pass it to Unregister.
type Registered struct {
	point Point
	id    uint64
}

// Register adds handler to the ordered list for point.
func (r *Registry) Register(point Point, handler Handler) Registered {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	reg := &registration{
		id:      r.nextID,
		handler: handler,
		breaker: NewCircuitBreaker(r.breakerThreshold, r.breakerReset),
	}
	r.points[point] = append(r.points[point], reg)
	return Registered{point: point, id: reg.id}
}

// Unregister removes a previously registered handler.
func (r *Registry) Unregister(h Registered) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.points[h.point]
	for i, reg := range list {
		if reg.id == h.id {
			r.points[h.point] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (r *Registry) handlersFor(point Point) []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*registration, len(r.points[point]))
	copy(out, r.points[point])
	return out
}

// invoke runs a single handler under the registry's execution budget and
// circuit breaker. A budget timeout or breaker rejection both surface as a
// fail-safe Skipped outcome, matching spec §7's "Hook failures ... do not
// tear down the kernel." A timeout is also recorded as a breaker failure;
// a rejection records nothing, since the handler never ran.
func (r *Registry) invoke(ctx context.Context, reg *registration, point Point, hctx Context) Outcome {
	ctx, span := r.tracer.Start(ctx, "hooks.Registry.invoke")
	defer span.End()

	if !reg.breaker.Allow() {
		r.metrics.IncCounter("hooks.breaker_open", 1, "point", string(point))
		r.logger.Warn(ctx, "circuit breaker open, skipping hook", "point", string(point))
		return Outcome{Kind: Skipped}
	}

	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := reg.handler.Handle(ctx, hctx)
		done <- result{o, err}
	}()

	select {
	case res := <-done:
		reg.breaker.Record(res.err)
		if res.err != nil {
			r.metrics.IncCounter("hooks.handler_error", 1, "point", string(point))
			r.logger.Error(ctx, "hook handler returned an error", "point", string(point), "error", res.err.Error())
			span.RecordError(res.err)
			return Outcome{Kind: Cancel, Reason: res.err.Error()}
		}
		return res.outcome
	case <-ctx.Done():
		err := errors.New(errors.Timeout, "hook execution budget exceeded")
		reg.breaker.Record(err)
		r.metrics.IncCounter("hooks.budget_exceeded", 1, "point", string(point))
		r.logger.Warn(ctx, "hook execution budget exceeded", "point", string(point), "budget", r.budget.String())
		span.RecordError(err)
		return Outcome{Kind: Skipped}
	}
}

// Sequential runs every handler at point in registration order, feeding
// each Modified outcome's data into the next handler (spec §9: Modified
// outcomes are cumulative across the chain) and short-circuiting on the
// first Cancel or Replace (spec §4.6).
func (r *Registry) Sequential(ctx context.Context, point Point, hctx Context) Outcome {
	data := hctx.Data
	last := Outcome{Kind: Continue}
	for _, reg := range r.handlersFor(point) {
		call := hctx
		call.Data = data
		o := r.invoke(ctx, reg, point, call)
		switch o.Kind {
		case Cancel, Replace:
			return o
		case Modified:
			data = mergeData(data, o.Data)
			last = Outcome{Kind: Modified, Data: data}
		default:
			if o.Kind != Continue {
				last = o
			}
		}
	}
	return last
}

// Parallel runs every handler at point concurrently and merges their
// outcomes by the fixed priority table of spec §4.6, with registration
// order breaking ties among equal-priority outcomes
// (original_source/llmspell-hooks/src/patterns/parallel.rs, spec §C).
func (r *Registry) Parallel(ctx context.Context, point Point, hctx Context) Outcome {
	regs := r.handlersFor(point)
	outcomes := make([]Outcome, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg *registration) {
			defer wg.Done()
			outcomes[i] = r.invoke(ctx, reg, point, hctx)
		}(i, reg)
	}
	wg.Wait()

	return mergeParallel(outcomes)
}

// mergeParallel picks the highest-priority outcome, breaking ties by
// registration (slice) order.
func mergeParallel(outcomes []Outcome) Outcome {
	best := Outcome{Kind: Continue}
	bestPriority := -1
	for _, o := range outcomes {
		p := priority[o.Kind]
		if p > bestPriority {
			best = o
			bestPriority = p
		}
	}
	return best
}

func mergeData(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// RetryBackoff builds an exponential backoff sequence for a Retry outcome,
// bounded by maxAttempts. No code in this module calls it; the kernel
// transports do not retry failed writes.
func RetryBackoff(maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(b, uint64(maxAttempts))
}
