package bridge

import (
	"context"
	"sync/atomic"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/telemetry"
)

// reentranceDepth is a per-goroutine-tree counter threaded through
// context.Context so AsyncBridge.Call can detect how many nested
// script-to-host-to-script round trips are in flight (spec §4.2 "The
// bridge MUST NOT deadlock when an async operation itself re-enters the
// interpreter (re-entrance is supported up to a configurable recursion
// depth; exceeding it fails with ReentranceLimit)").
type reentranceKey struct{}

func depthFromContext(ctx context.Context) int {
	if d, ok := ctx.Value(reentranceKey{}).(int); ok {
		return d
	}
	return 0
}

// AsyncBridge is the synchronous facade over async host operations
// (spec §4.2 "Synchronous-async bridge"): every global method that wraps
// an async call invokes AsyncBridge.Call, which submits the work and
// parks the calling (script) goroutine on a one-shot completion channel.
// This mirrors original_source/llmspell-bridge's block_on_async helper,
// generalized from a single global Tokio runtime handle to an explicit
// per-Bridge scheduler boundary.
type AsyncBridge struct {
	maxDepth int
	inFlight int64

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// AsyncOption configures optional AsyncBridge dependencies.
type AsyncOption func(*AsyncBridge)

// WithAsyncLogger sets the logger Call reports reentrance-limit rejections
// and cancellations through.
func WithAsyncLogger(l telemetry.Logger) AsyncOption {
	return func(a *AsyncBridge) { a.logger = l }
}

// WithAsyncMetrics sets the metrics recorder Call increments on
// reentrance-limit rejections and cancellations.
func WithAsyncMetrics(m telemetry.Metrics) AsyncOption {
	return func(a *AsyncBridge) { a.metrics = m }
}

// WithAsyncTracer sets the tracer Call starts a span under.
func WithAsyncTracer(t telemetry.Tracer) AsyncOption {
	return func(a *AsyncBridge) { a.tracer = t }
}

// NewAsyncBridge constructs an AsyncBridge that rejects reentrance deeper
// than maxDepth. Telemetry dependencies default to no-ops when not
// supplied via AsyncOption.
func NewAsyncBridge(maxDepth int, opts ...AsyncOption) *AsyncBridge {
	a := &AsyncBridge{
		maxDepth: maxDepth,
		logger:   telemetry.NoopLogger{},
		metrics:  telemetry.NoopMetrics{},
		tracer:   telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InFlight reports the number of Call invocations currently parked,
// useful for the kernel's LoadBalanced routing strategy and for tests.
func (a *AsyncBridge) InFlight() int64 {
	return atomic.LoadInt64(&a.inFlight)
}

// Call submits fn to run asynchronously and blocks the calling goroutine
// until it completes, is cancelled via ctx, or the reentrance depth limit
// is exceeded. fn receives a context carrying one more level of
// reentrance depth than the caller's, so a host operation that itself
// calls back into a global method composes correctly.
func (a *AsyncBridge) Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, span := a.tracer.Start(ctx, "bridge.AsyncBridge.Call")
	defer span.End()

	depth := depthFromContext(ctx)
	if depth >= a.maxDepth {
		a.metrics.IncCounter("bridge.async.reentrance_limit", 1)
		a.logger.Warn(ctx, "reentrance limit exceeded", "depth", depth, "limit", a.maxDepth)
		err := errors.New(errors.ResourceLimit, "scripting bridge reentrance limit exceeded").
			WithDetails(map[string]any{"resource": "reentrance_depth", "limit": a.maxDepth})
		span.RecordError(err)
		return nil, err
	}

	atomic.AddInt64(&a.inFlight, 1)
	defer atomic.AddInt64(&a.inFlight, -1)

	childCtx := context.WithValue(ctx, reentranceKey{}, depth+1)

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(childCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			span.RecordError(r.err)
		}
		return r.value, r.err
	case <-ctx.Done():
		// The enclosing request was cancelled; the parked script is
		// unparked with a cancellation error (spec §4.2 "Cancellation
		// propagates"). fn's goroutine is left to finish on its own —
		// its result, if any, is discarded.
		a.metrics.IncCounter("bridge.async.cancelled", 1)
		a.logger.Info(ctx, "async host operation cancelled", "depth", depth)
		err := errors.Wrap(errors.Cancelled, "async host operation cancelled", ctx.Err())
		span.RecordError(err)
		return nil, err
	}
}

// CallTyped is a generic convenience wrapper over Call for handlers that
// know their result type statically.
func CallTyped[T any](ctx context.Context, a *AsyncBridge, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := a.Call(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.New(errors.Internal, "async bridge result type mismatch")
	}
	return t, nil
}
