package kernel

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/telemetry"
)

// Handler processes a single Request UniversalMessage and returns its
// result payload (spec §4.1 step 4-5 "Handler executes ... returns a
// result").
type Handler interface {
	Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg UniversalMessage) (json.RawMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	return f(ctx, msg)
}

// Strategy selects how a (protocol, channel) route's registered handlers
// are invoked (spec §4.1 "Routing strategies").
type Strategy int

const (
	// Direct hashes (protocol, channel) to the single registered handler;
	// registering a second handler under Direct replaces the first.
	Direct Strategy = iota
	RoundRobin
	LoadBalanced
	Broadcast
)

type route struct {
	strategy Strategy
	handlers []*registeredHandler
	nextRR   uint64
}

type registeredHandler struct {
	id       uint64
	handler  Handler
	inFlight int64
}

// Router resolves (protocol, channel) pairs to handlers and dispatches
// UniversalMessages to them (spec §4.1 step 3). IOPub always broadcasts;
// Shell/Control default to Direct unless registered otherwise.
type Router struct {
	mu     sync.RWMutex
	routes map[routeKey]*route
	nextID uint64

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

type routeKey struct {
	protocol Protocol
	channel  Channel
}

// Option configures optional Router dependencies.
type Option func(*Router)

// WithLogger sets the structured logger Dispatch reports routing decisions
// through. Unset routers log nowhere.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics sets the metrics recorder Dispatch increments on NoHandler and
// handler panics.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTracer sets the tracer Dispatch starts a span under for every
// dispatched message.
func WithTracer(t telemetry.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// NewRouter constructs an empty Router. Telemetry dependencies default to
// no-ops when not supplied via Option.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		routes:  make(map[routeKey]*route),
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
		tracer:  telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds handler to the route for (protocol, channel), creating the
// route with the given strategy if it does not yet exist; IOPub routes
// always use Broadcast whatever strategy is passed. Re-registering
// under Direct replaces the existing handler (spec §4.1 "Direct: ... fail
// with NoHandler otherwise" implies exactly one handler per Direct route).
func (r *Router) Register(protocol Protocol, channel Channel, strategy Strategy, handler Handler) {
	if channel == IOPub {
		strategy = Broadcast
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey{protocol, channel}
	rt, ok := r.routes[key]
	if !ok {
		rt = &route{strategy: strategy}
		r.routes[key] = rt
	}
	r.nextID++
	rh := &registeredHandler{id: r.nextID, handler: handler}
	if strategy == Direct {
		rt.handlers = []*registeredHandler{rh}
	} else {
		rt.handlers = append(rt.handlers, rh)
	}
}

// Dispatch resolves msg's (protocol, channel) route and invokes it per the
// route's strategy (spec §4.1 step 3-5).
func (r *Router) Dispatch(ctx context.Context, msg UniversalMessage) (json.RawMessage, error) {
	ctx, span := r.tracer.Start(ctx, "kernel.Router.Dispatch")
	defer span.End()

	r.mu.RLock()
	rt, ok := r.routes[routeKey{msg.Protocol, msg.Channel}]
	r.mu.RUnlock()
	if !ok || len(rt.handlers) == 0 {
		r.metrics.IncCounter("kernel.router.no_handler", 1, "protocol", string(msg.Protocol))
		r.logger.Warn(ctx, "no handler registered", "protocol", string(msg.Protocol), "channel", string(msg.Channel))
		err := errors.New(errors.NoHandler, "no handler registered for protocol/channel").
			WithDetails(map[string]any{"protocol": string(msg.Protocol), "channel": string(msg.Channel)})
		span.RecordError(err)
		return nil, err
	}

	r.logger.Debug(ctx, "dispatching request", "protocol", string(msg.Protocol), "channel", string(msg.Channel))
	switch rt.strategy {
	case Direct:
		return r.invoke(ctx, rt.handlers[0], msg)
	case RoundRobin:
		idx := atomic.AddUint64(&rt.nextRR, 1) - 1
		h := rt.handlers[idx%uint64(len(rt.handlers))]
		return r.invoke(ctx, h, msg)
	case LoadBalanced:
		h := leastLoaded(rt.handlers)
		return r.invoke(ctx, h, msg)
	case Broadcast:
		for _, h := range rt.handlers {
			go func(h *registeredHandler) {
				_, _ = r.invoke(ctx, h, msg)
			}(h)
		}
		return nil, nil
	default:
		return nil, errors.New(errors.Internal, "unknown routing strategy")
	}
}

// leastLoaded returns the handler with the fewest in-flight requests,
// ties broken by registration order (spec §4.1 "LoadBalanced: handler with
// the smallest number of in-flight requests; ties broken by registration
// order").
func leastLoaded(handlers []*registeredHandler) *registeredHandler {
	sorted := make([]*registeredHandler, len(handlers))
	copy(sorted, handlers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return atomic.LoadInt64(&sorted[i].inFlight) < atomic.LoadInt64(&sorted[j].inFlight)
	})
	return sorted[0]
}

func (r *Router) invoke(ctx context.Context, rh *registeredHandler, msg UniversalMessage) (json.RawMessage, error) {
	atomic.AddInt64(&rh.inFlight, 1)
	defer atomic.AddInt64(&rh.inFlight, -1)
	result, err := safeHandle(ctx, rh.handler, msg)
	if err != nil {
		if errors.KindOf(err) == errors.Internal {
			r.metrics.IncCounter("kernel.router.handler_panic", 1)
			r.logger.Error(ctx, "handler panicked", "protocol", string(msg.Protocol), "channel", string(msg.Channel))
		}
	}
	return result, err
}

// safeHandle recovers a handler panic into an Internal error rather than
// tearing down the kernel (spec §4.1 step 6 "handler crashes convert to an
// Internal error without tearing down the kernel").
func safeHandle(ctx context.Context, h Handler, msg UniversalMessage) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New(errors.Internal, "handler panicked").WithDetails(map[string]any{"recover": rec})
		}
	}()
	return h.Handle(ctx, msg)
}
