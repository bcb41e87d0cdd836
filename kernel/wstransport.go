package kernel

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lexlapax/kernelspell/errors"
)

// channelTag assigns the single-byte wire tag of spec §6's
// "{channel: u8, length: u32, bytes: opaque}" frame to each Channel.
var channelTag = map[Channel]byte{
	Shell:     1,
	Control:   2,
	IOPub:     3,
	Stdin:     4,
	Heartbeat: 5,
}

var tagChannel = map[byte]Channel{
	1: Shell,
	2: Control,
	3: IOPub,
	4: Stdin,
	5: Heartbeat,
}

// WSTransport is the socket Transport of spec §6, framing every message as
// a length-prefixed binary websocket message: one channel byte, a
// big-endian uint32 length, then that many payload bytes. It is grounded
// on runtime/mcp/runtime.go's JSON-coercion boundary helpers, generalized
// from an HTTP/JSON-RPC encoder to a persistent framed socket.
type WSTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// NewWSTransport wraps an already-established websocket connection.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

func (t *WSTransport) Send(ctx context.Context, f Frame) error {
	tag, ok := channelTag[f.Channel]
	if !ok {
		return errors.New(errors.Validation, fmt.Sprintf("unknown channel %q", f.Channel))
	}

	buf := make([]byte, 1+4+len(f.Bytes))
	buf[0] = tag
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(f.Bytes)))
	copy(buf[5:], f.Bytes)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return errors.Wrap(errors.TransportError, "websocket write failed", err)
	}
	return nil
}

func (t *WSTransport) Recv(ctx context.Context) (Frame, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return Frame{}, errors.Wrap(errors.TransportError, "websocket read failed", err)
	}
	if len(data) < 5 {
		return Frame{}, errors.New(errors.MalformedRequest, "frame shorter than header")
	}
	ch, ok := tagChannel[data[0]]
	if !ok {
		return Frame{}, errors.New(errors.MalformedRequest, fmt.Sprintf("unknown channel tag %d", data[0]))
	}
	length := binary.BigEndian.Uint32(data[1:5])
	if int(length) != len(data)-5 {
		return Frame{}, errors.New(errors.MalformedRequest, "frame length mismatch")
	}
	return Frame{Channel: ch, Bytes: data[5:]}, nil
}

func (t *WSTransport) Close() error {
	return t.conn.Close()
}
