// Package errors defines the closed error taxonomy shared by every layer of
// the client. Failures are classified exactly once, at the transport boundary,
// and carry a stable code from the set below all the way to the caller.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a failure class. The set is closed: every error returned to
// a caller carries exactly one of these values.
type Code string

const (
	// CodeRequest marks a setup or configuration failure before dispatch.
	CodeRequest Code = "ERR_REQUEST"
	// CodeNetwork marks a transport-level failure with no response.
	CodeNetwork Code = "ERR_NETWORK"
	// CodeTimedOut marks a deadline expiry observed as a timeout.
	CodeTimedOut Code = "ETIMEDOUT"
	// CodeAborted marks a connection aborted by a deadline.
	CodeAborted Code = "ECONNABORTED"
	// CodeCanceled marks an explicit cancellation by the caller.
	CodeCanceled Code = "ERR_CANCELED"
	// CodeClient marks a response with status 400-499.
	CodeClient Code = "ERR_CLIENT"
	// CodeServer marks a response with status >= 500.
	CodeServer Code = "ERR_SERVER"
	// CodeResponse marks a received response rejected by the status predicate
	// but not classified as a client or server error.
	CodeResponse Code = "ERR_RESPONSE"
)

// DefaultMessage is used when an error is promoted without a usable message.
const DefaultMessage = "Unknown error occurred"

// Error is the single error type surfaced by the client.
type Error struct {
	Message   string
	Code      Code
	Status    int
	RequestID string

	// Config, Request and Response are back-references to the resolved
	// configuration, the backend's native request and the received response,
	// if any. They are typed loosely to keep this package free of transport
	// dependencies.
	Config   any
	Request  any
	Response any

	cause error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	if message == "" {
		message = DefaultMessage
	}
	return &Error{Message: message, Code: code}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// From promotes an arbitrary error into an *Error with the given code. An
// error that already is an *Error is returned unchanged; its original
// classification is never overwritten. The source error is retained as the
// cause so errors.Is/As keep working across the promotion.
func From(err error, code Code) *Error {
	if err == nil {
		return New(code, "")
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	e := New(code, err.Error())
	e.cause = err
	return e
}

// WithConfig attaches the resolved configuration and returns e.
func (e *Error) WithConfig(cfg any) *Error {
	e.Config = cfg
	return e
}

// WithRequest attaches the backend's native request and returns e.
func (e *Error) WithRequest(req any) *Error {
	e.Request = req
	return e
}

// WithResponse attaches the received response and status and returns e.
func (e *Error) WithResponse(resp any, status int) *Error {
	e.Response = resp
	e.Status = status
	return e
}

// WithRequestID attaches the per-execution request id and returns e.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = DefaultMessage
	}
	s := fmt.Sprintf("%s: %s", e.Code, msg)
	if e.Status > 0 {
		s = fmt.Sprintf("%s (status %d)", s, e.Status)
	}
	if e.cause != nil && e.cause.Error() != msg {
		s = fmt.Sprintf("%s: %v", s, e.cause)
	}
	return s
}

// Unwrap returns the promoted source error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches two taxonomy errors by code, so callers can write
// errors.Is(err, errors.New(CodeNetwork, "")) style checks against sentinels.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsFluxError reports whether err is (or wraps) a taxonomy error. This is a
// tagged-type check, never a structural one.
func IsFluxError(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// CodeOf extracts the taxonomy code from err, if it carries one.
func CodeOf(err error) (Code, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}

// StatusOf extracts the response status from err, if a response was received.
func StatusOf(err error) (int, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.Status > 0 {
		return fe.Status, true
	}
	return 0, false
}
