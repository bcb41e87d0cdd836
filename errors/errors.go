// Package errors defines the stable error-kind taxonomy shared by every
// subsystem in this module. Protocol adapters render a *Error as the wire
// Response "error" object {kind, message, details}; internal callers use
// errors.Is/errors.As against the sentinel Kind values the same way
// toolregistry/messages.go's toolerrors.ToolError is consumed in the
// teacher runtime.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a stable wire identifier for an error category. Kinds are never
// renamed once shipped; the string values are part of the wire contract.
type Kind string

const (
	Validation                 Kind = "Validation"
	NotFound                   Kind = "NotFound"
	InvalidStateTransition     Kind = "InvalidStateTransition"
	Timeout                    Kind = "Timeout"
	Cancelled                  Kind = "Cancelled"
	ResourceLimit              Kind = "ResourceLimit"
	PermissionDenied           Kind = "PermissionDenied"
	MalformedRequest           Kind = "MalformedRequest"
	NoHandler                  Kind = "NoHandler"
	TransportError             Kind = "TransportError"
	ScriptError                Kind = "ScriptError"
	ReplayDivergence           Kind = "ReplayDivergence"
	UnsupportedSnapshotVersion Kind = "UnsupportedSnapshotVersion"
	Internal                   Kind = "Internal"
)

// Error is the concrete error type produced by every subsystem. Details
// carries structured, kind-specific fields (e.g. {from,to} for
// InvalidStateTransition, {resource} for ResourceLimit, {at} for
// ReplayDivergence).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind with no details or cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error that chains an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	cp.Details = merged
	return &cp
}

// KindOf extracts the Kind from err, returning Internal if err is not (or
// does not wrap) an *Error. This is the catch-all used by adapters so a
// handler panic or unrecognized error never crashes the kernel (spec §4.1
// "handler crashes convert to an Internal error without tearing down the
// kernel").
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
