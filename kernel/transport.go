package kernel

import (
	"context"
	"sync"

	"github.com/lexlapax/kernelspell/errors"
)

// Frame is the wire envelope of spec §6: "{channel: u8, length: u32,
// bytes: opaque}". Channel is carried as the logical Channel name rather
// than a raw byte so every Transport implementation shares one encoding
// regardless of how it serializes channel identity on the wire.
type Frame struct {
	Channel Channel
	Bytes   []byte
}

// Transport is the pluggable boundary of spec §6 ("Transport. Pluggable.
// Minimally: an in-process transport ... and a socket transport"). A
// Transport carries Frames for exactly one connected peer; the kernel
// multiplexes multiple peers by holding one Transport per client.
type Transport interface {
	// Send writes a frame to the peer, blocking until accepted or ctx is
	// done.
	Send(ctx context.Context, f Frame) error
	// Recv blocks until a frame arrives from the peer or ctx is done.
	Recv(ctx context.Context) (Frame, error)
	// Close releases the transport's resources. Subsequent Send/Recv calls
	// return a TransportError.
	Close() error
}

// InProcessTransport is the default in-process Transport of spec §6. It
// holds two bounded queues, one per direction, and frames of every
// channel share them; it does not keep a separate queue per channel. It
// connects an in-process client directly to the kernel without
// serialization, used by embedded callers and by tests.
type InProcessTransport struct {
	inbound  chan Frame // client -> kernel
	outbound chan Frame // kernel -> client

	mu     sync.Mutex
	closed bool
}

// NewInProcessPair returns two ends of a bounded in-process transport: the
// kernel side and the client side. Each queue holds up to bufferSize
// frames (bufferSize <= 0 defaults to 64).
func NewInProcessPair(bufferSize int) (kernelSide, clientSide *InProcessTransport) {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	toKernel := make(chan Frame, bufferSize)
	toClient := make(chan Frame, bufferSize)
	kernelSide = &InProcessTransport{inbound: toKernel, outbound: toClient}
	clientSide = &InProcessTransport{inbound: toClient, outbound: toKernel}
	return kernelSide, clientSide
}

func (t *InProcessTransport) Send(ctx context.Context, f Frame) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errors.New(errors.TransportError, "transport is closed")
	}
	select {
	case t.outbound <- f:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.Cancelled, "send cancelled", ctx.Err())
	}
}

func (t *InProcessTransport) Recv(ctx context.Context) (Frame, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return Frame{}, errors.New(errors.TransportError, "transport is closed")
	}
	select {
	case f, ok := <-t.inbound:
		if !ok {
			return Frame{}, errors.New(errors.TransportError, "transport closed")
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, errors.Wrap(errors.Cancelled, "recv cancelled", ctx.Err())
	}
}

func (t *InProcessTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.outbound)
	return nil
}
