// Package fault defines the closed set of failure kinds produced by the rules
// engine and the upstream orchestrator, and how they map onto HTTP statuses.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates failures. The set is closed.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindUnprocessable   Kind = "UNPROCESSABLE"
	KindNotFound        Kind = "NOT_FOUND"
	KindUpstreamConfig  Kind = "UPSTREAM_CONFIG_ERROR"
	KindUpstreamTimeout Kind = "UPSTREAM_TIMEOUT"
	KindUpstream        Kind = "UPSTREAM_ERROR"
	KindDatabase        Kind = "DATABASE_ERROR"
)

// Error is a classified failure. Kind-specific payload lives in Field
// (validation), UpstreamStatus and UpstreamBody (upstream errors).
type Error struct {
	Kind           Kind
	Message        string
	Field          string
	UpstreamStatus int
	UpstreamBody   string
	Err            error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.UpstreamStatus != 0 {
		msg = fmt.Sprintf("%s (upstream status %d)", msg, e.UpstreamStatus)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation reports caller-supplied data that violates a precondition.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// Unprocessable reports a syntactically valid document that fails the rule schema.
func Unprocessable(msg string, err error) *Error {
	return &Error{Kind: KindUnprocessable, Message: msg, Err: err}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// Config reports a missing or invalid operator setting.
func Config(setting string) *Error {
	return &Error{Kind: KindUpstreamConfig, Field: setting, Message: "upstream endpoint not configured"}
}

// Timeout reports a bounded upstream wait that expired or was cancelled.
func Timeout(op string, err error) *Error {
	return &Error{Kind: KindUpstreamTimeout, Message: op + " timed out", Err: err}
}

// Upstream reports an upstream that answered with a failure.
func Upstream(status int, body, msg string) *Error {
	return &Error{Kind: KindUpstream, Message: msg, UpstreamStatus: status, UpstreamBody: body}
}

// Database reports a local persistence failure.
func Database(msg string, err error) *Error {
	return &Error{Kind: KindDatabase, Message: msg, Err: err}
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe != nil {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind onto the status the HTTP boundary renders.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstream:
		return http.StatusBadGateway
	case KindUpstreamConfig, KindDatabase:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
