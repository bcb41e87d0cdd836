package kernel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lexlapax/kernelspell/errors"
)

// IOStream is the output half of the IO Context indirection of spec §4.5:
// "separating 'where output goes' from 'what produced it'."
type IOStream interface {
	Write(s string) error
	WriteLine(s string) error
	Flush() error
}

// IOInput is the input half of spec §4.5.
type IOInput interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	ReadPassword(ctx context.Context, prompt string) (string, error)
}

// SignalHandler tracks interrupt delivery for a single request (spec §4.5
// "Interrupts delivered by the client (Control channel) set the interrupt
// flag ... and asynchronously cancel the request's task").
type SignalHandler interface {
	HandleInterrupt()
	IsInterrupted() bool
}

// requestSignal is the shared SignalHandler implementation for both
// Embedded and Connected contexts.
type requestSignal struct {
	interrupted atomic.Bool
	cancel      context.CancelFunc
}

func (s *requestSignal) HandleInterrupt() {
	s.interrupted.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *requestSignal) IsInterrupted() bool { return s.interrupted.Load() }

// IOContext bundles the three IO traits plus the request id they are
// scoped to; one is installed per in-flight request (spec §4.5 "The
// runtime installs one IOContext per in-flight request").
type IOContext struct {
	RequestID string
	Stream    IOStream
	Input     IOInput
	Signal    SignalHandler
}

// NewRequestSignal builds a SignalHandler bound to a cancellable child of
// parent, returning both the handler and the context a request's task
// tree should run under.
func NewRequestSignal(parent context.Context) (context.Context, SignalHandler) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &requestSignal{cancel: cancel}
}

// flushWindow is the coalescing window of spec §4.5 ("the kernel coalesces
// writes within a configurable small window"); the default is a small
// fixed duration per original_source/llmspell-kernel/src/kernel_io.rs's
// "flush is advisory" framing.
const flushWindow = 25 * time.Millisecond

// EmbeddedStream streams write directly to an in-process client's
// callback (spec §4.5 "Embedded request ... streams write to the client's
// provided callbacks").
type EmbeddedStream struct {
	onLine func(stream, line string)
	name   string // "stdout" | "stderr"

	mu      sync.Mutex
	pending []string
	timer   *time.Timer
}

// NewEmbeddedStream constructs an EmbeddedStream for the given logical
// stream name ("stdout" or "stderr"), invoking onLine as lines are
// flushed.
func NewEmbeddedStream(name string, onLine func(stream, line string)) *EmbeddedStream {
	return &EmbeddedStream{name: name, onLine: onLine}
}

func (s *EmbeddedStream) Write(str string) error { return s.WriteLine(str) }

func (s *EmbeddedStream) WriteLine(str string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, str)
	if s.timer == nil {
		s.timer = time.AfterFunc(flushWindow, func() { _ = s.Flush() })
	}
	return nil
}

func (s *EmbeddedStream) Flush() error {
	s.mu.Lock()
	lines := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	for _, l := range lines {
		s.onLine(s.name, l)
	}
	return nil
}

// EmbeddedInput reads from an in-process client's input provider (spec
// §4.5 "read_line reads from the client's input provider").
type EmbeddedInput struct {
	provide func(ctx context.Context, prompt string, password bool) (string, error)
}

// NewEmbeddedInput wraps an in-process input provider callback.
func NewEmbeddedInput(provide func(ctx context.Context, prompt string, password bool) (string, error)) *EmbeddedInput {
	return &EmbeddedInput{provide: provide}
}

func (i *EmbeddedInput) ReadLine(ctx context.Context, prompt string) (string, error) {
	return i.provide(ctx, prompt, false)
}

func (i *EmbeddedInput) ReadPassword(ctx context.Context, prompt string) (string, error) {
	return i.provide(ctx, prompt, true)
}

// ConnectedStream routes output as IOPub `stream` notifications tagged
// with the originating request id (spec §4.5 "Connected request ... writes
// become IOPub stream notifications tagged with the request id").
type ConnectedStream struct {
	requestID string
	name      string
	publish   func(notif WireNotification)

	mu      sync.Mutex
	pending []string
	timer   *time.Timer
}

// NewConnectedStream constructs a ConnectedStream that publishes coalesced
// stream notifications via publish.
func NewConnectedStream(requestID, name string, publish func(notif WireNotification)) *ConnectedStream {
	return &ConnectedStream{requestID: requestID, name: name, publish: publish}
}

func (s *ConnectedStream) Write(str string) error { return s.WriteLine(str) }

func (s *ConnectedStream) WriteLine(str string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, str)
	if s.timer == nil {
		s.timer = time.AfterFunc(flushWindow, func() { _ = s.Flush() })
	}
	return nil
}

func (s *ConnectedStream) Flush() error {
	s.mu.Lock()
	lines := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	if len(lines) == 0 {
		return nil
	}
	s.publish(WireNotification{
		MsgID:   uuid.NewString(),
		MsgType: string(MsgNotification),
		Channel: string(IOPub),
		Content: NotificationContent{
			Event: "stream",
			Data: map[string]any{
				"request_id": s.requestID,
				"name":       s.name,
				"lines":      lines,
			},
		},
	})
	return nil
}

// ConnectedInput emits an input_request on IOPub and awaits the matching
// input_reply on Stdin (spec §4.5 "read_line emits an input_request on
// IOPub and awaits a matching input_reply on Stdin"; spec §8 S5).
type ConnectedInput struct {
	requestID string
	publish   func(notif WireNotification)

	mu      sync.Mutex
	pending chan string // set while a read is outstanding
}

// NewConnectedInput constructs a ConnectedInput bound to requestID.
func NewConnectedInput(requestID string, publish func(notif WireNotification)) *ConnectedInput {
	return &ConnectedInput{requestID: requestID, publish: publish}
}

func (i *ConnectedInput) readPrompt(ctx context.Context, prompt string, password bool) (string, error) {
	i.mu.Lock()
	if i.pending != nil {
		i.mu.Unlock()
		return "", errors.New(errors.Validation, "input already outstanding for this request; no subsequent input_request may fire without a matching read")
	}
	reply := make(chan string, 1)
	i.pending = reply
	i.mu.Unlock()

	i.publish(WireNotification{
		MsgID:   uuid.NewString(),
		MsgType: string(MsgNotification),
		Channel: string(IOPub),
		Content: NotificationContent{
			Event: "input_request",
			Data: map[string]any{
				"request_id": i.requestID,
				"prompt":     prompt,
				"password":   password,
			},
		},
	})

	select {
	case v := <-reply:
		i.mu.Lock()
		i.pending = nil
		i.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		i.mu.Lock()
		i.pending = nil
		i.mu.Unlock()
		return "", errors.Wrap(errors.Cancelled, "input request cancelled", ctx.Err())
	}
}

func (i *ConnectedInput) ReadLine(ctx context.Context, prompt string) (string, error) {
	return i.readPrompt(ctx, prompt, false)
}

func (i *ConnectedInput) ReadPassword(ctx context.Context, prompt string) (string, error) {
	return i.readPrompt(ctx, prompt, true)
}

// DeliverReply feeds a Stdin input_reply to the outstanding read, if any.
// It is a no-op if no read is currently pending, matching spec §8 S5's
// "no subsequent input_request fires without a matching read" by simply
// having nothing to deliver to.
func (i *ConnectedInput) DeliverReply(value string) {
	i.mu.Lock()
	reply := i.pending
	i.mu.Unlock()
	if reply != nil {
		reply <- value
	}
}
