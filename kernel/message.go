package kernel

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lexlapax/kernelspell/errors"
)

// MessageType is the msg_type discriminant of spec §6's wire shape.
type MessageType string

const (
	MsgRequest      MessageType = "Request"
	MsgResponse     MessageType = "Response"
	MsgNotification MessageType = "Notification"
)

// Protocol names a subprotocol a ProtocolAdapter handles (spec §4.1
// "protocol adapters (execute/debug/tool/state/session/context/memory
// subprotocols)").
type Protocol string

const (
	ProtocolExec    Protocol = "exec"
	ProtocolDebug   Protocol = "debug"
	ProtocolTool    Protocol = "tool"
	ProtocolState   Protocol = "state"
	ProtocolSession Protocol = "session"
	ProtocolContext Protocol = "context"
	ProtocolMemory  Protocol = "memory"
)

// UniversalMessage is the internal representation every ProtocolAdapter
// produces from an inbound frame and every handler result is rendered back
// into (spec §4.1 "Universal Message lifecycle").
type UniversalMessage struct {
	ID        string
	Type      MessageType
	Channel   Channel
	Protocol  Protocol
	RequestID string // Response/Notification: the Request this answers/relates to
	Content   json.RawMessage
	CreatedAt time.Time
}

// NewRequest builds a Request UniversalMessage, stamping a fresh id (spec
// §4.1 step 2 "stamping a fresh id, source channel, metadata").
func NewRequest(channel Channel, protocol Protocol, content json.RawMessage) UniversalMessage {
	return UniversalMessage{
		ID:        uuid.NewString(),
		Type:      MsgRequest,
		Channel:   channel,
		Protocol:  protocol,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// WireRequest is the JSON shape of an inbound Request frame (spec §6).
type WireRequest struct {
	MsgID   string          `json:"msg_id"`
	MsgType string          `json:"msg_type"`
	Channel string          `json:"channel"`
	Content json.RawMessage `json:"content"`
}

// WireResponse is the JSON shape of an outbound Response frame (spec §6):
// exactly one of Result or Error is populated.
type WireResponse struct {
	MsgID   string          `json:"msg_id"`
	MsgType string          `json:"msg_type"`
	Channel string          `json:"channel"`
	Content ResponseContent `json:"content"`
}

// ResponseContent is the {"ok": true, "result": ...} |
// {"ok": false, "error": {...}} sum of spec §6.
type ResponseContent struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// WireError renders an errors.Error as the wire {kind, message, details}
// object (spec §7 "adapters render errors as the Response error object").
type WireError struct {
	Kind    errors.Kind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// RenderError converts err into a WireError, defaulting to Internal for
// any error that is not (or does not wrap) an *errors.Error, matching
// errors.KindOf's catch-all contract.
func RenderError(err error) *WireError {
	if err == nil {
		return nil
	}
	kind := errors.KindOf(err)
	we := &WireError{Kind: kind, Message: err.Error()}
	var e *errors.Error
	if ok := errorsAs(err, &e); ok && e.Details != nil {
		we.Details = e.Details
	}
	return we
}

func errorsAs(err error, target **errors.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*errors.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// WireNotification is the JSON shape of an IOPub broadcast (spec §6).
type WireNotification struct {
	MsgID   string              `json:"msg_id"`
	MsgType string              `json:"msg_type"`
	Channel string              `json:"channel"`
	Content NotificationContent `json:"content"`
}

// NotificationContent carries an event tag plus arbitrary data, matching
// spec §6's `{"event": str, "data": ...}`.
type NotificationContent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
