package kernel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HeartbeatMonitor echoes every frame it receives on the Heartbeat channel
// verbatim (spec §4.1 "Any frame on Heartbeat is echoed immediately") and
// tracks liveness against a configured interval (spec §4.1 "the kernel
// MUST answer within the configured interval; missed heartbeats are a
// client-visible liveness signal but do not affect state").
//
// missedAlert is rate-limited (golang.org/x/time/rate, grounded on
// features/model/middleware/ratelimit.go's rate.Limiter usage) so a
// persistently dead client produces one liveness notification per
// interval rather than one per attempted heartbeat.
type HeartbeatMonitor struct {
	interval time.Duration
	limiter  *rate.Limiter

	mu       sync.Mutex
	lastEcho time.Time
}

// NewHeartbeat constructs a HeartbeatMonitor monitor that expects an echo at
// least every interval.
func NewHeartbeat(interval time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HeartbeatMonitor{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		lastEcho: time.Now(),
	}
}

// Echo runs the kernel side of the heartbeat protocol: it sends back
// exactly the bytes it received. The caller supplies the Transport to
// write to, since a given HeartbeatMonitor monitor tracks liveness across
// however many transports are attached to this process.
func (h *HeartbeatMonitor) Echo(ctx context.Context, t Transport, f Frame) error {
	h.mu.Lock()
	h.lastEcho = time.Now()
	h.mu.Unlock()
	return t.Send(ctx, Frame{Channel: Heartbeat, Bytes: f.Bytes})
}

// Alive reports whether an echo has occurred within the configured
// interval.
func (h *HeartbeatMonitor) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Since(h.lastEcho) <= h.interval
}

// ShouldAlertMissed reports whether a liveness notification should fire
// right now for a heartbeat that has gone silent, throttled to at most
// once per interval so a persistently unreachable client does not flood
// IOPub with repeated notifications.
func (h *HeartbeatMonitor) ShouldAlertMissed() bool {
	if h.Alive() {
		return false
	}
	return h.limiter.Allow()
}
