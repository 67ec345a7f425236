package mcp

import (
	"encoding/json"
	"fmt"
)

// Code is a wire-level error code carried in failure envelopes.
type Code string

// Wire error codes.
const (
	CodeToolNotFound     Code = "tool_not_found"
	CodeInvalidRequest   Code = "invalid_request"
	CodeExecutionError   Code = "tool_execution_error"
	CodeResourceNotFound Code = "resource_not_found"
)

// Error is a dispatch-level failure. It is the explicit result type the
// dispatcher threads through the tool and resource paths; only the
// dispatcher renders it into a wire envelope.
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds an Error with a formatted message.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Envelope is the normalized outcome of a dispatched request. Exactly
// one of Result or Err is rendered on the wire.
type Envelope struct {
	Result any
	Err    *Error
}

// Ok wraps a handler result value.
func Ok(v any) Envelope { return Envelope{Result: v} }

// Fail wraps a dispatch error.
func Fail(err *Error) Envelope { return Envelope{Err: err} }

// wireError is the JSON shape of a failure envelope.
type wireError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// MarshalJSON renders either {"result": ...} or {"error": {...}}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Err != nil {
		return json.Marshal(map[string]wireError{
			"error": {Code: e.Err.Code, Message: e.Err.Message},
		})
	}
	return json.Marshal(map[string]any{"result": e.Result})
}

// HTTPStatus maps an envelope to a transport status code.
func (e Envelope) HTTPStatus() int {
	if e.Err == nil {
		return 200
	}
	switch e.Err.Code {
	case CodeToolNotFound, CodeResourceNotFound:
		return 404
	case CodeInvalidRequest:
		return 400
	default:
		return 500
	}
}
