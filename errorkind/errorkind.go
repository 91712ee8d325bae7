// Package errorkind defines the typed error surface described in spec §7.
// Every error that can legitimately cross the wire to a client carries one
// of these Kinds; anything else is sanitized into InternalError before it
// reaches a caller (spec §4.1 "Failure semantics", §7).
package errorkind

import (
	"fmt"
	"net/http"
)

// Kind is the wire `code` of a protocol-level error.
type Kind string

const (
	Unauthorized        Kind = "Unauthorized"
	ActorNotFound       Kind = "ActorNotFound"
	MissingActorHeader  Kind = "MissingActorHeader"
	MessageTooLong      Kind = "MessageTooLong"
	MalformedMessage    Kind = "MalformedMessage"
	Unsupported         Kind = "Unsupported"
	ActionTimedOut      Kind = "ActionTimedOut"
	IncorrectConnToken  Kind = "IncorrectConnToken"
	ConnNotFound        Kind = "ConnNotFound"
	WebSocketsNotEnabled Kind = "WebSocketsNotEnabled"
	InternalError       Kind = "InternalError"
)

// Error is the typed error value that flows from actor/manager/connection
// code out to the wire. Metadata carries kind-specific structured detail
// (e.g. the offending feature name for Unsupported).
type Error struct {
	Kind     Kind
	Message  string
	Metadata map[string]any

	// cause, when set, is logged server-side but never serialized to the
	// client — it is how an InternalError keeps its real reason around for
	// the server log without leaking detail to a possibly-untrusted caller.
	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithMetadata attaches structured metadata to an Error, returning it for
// chaining at the construction site.
func (e *Error) WithMetadata(md map[string]any) *Error {
	e.Metadata = md
	return e
}

// Wrap builds an InternalError whose message is sanitized for clients but
// whose cause remains available to server-side logging via errors.Unwrap.
func Wrap(cause error) *Error {
	return &Error{Kind: InternalError, Message: "an internal error occurred", cause: cause}
}

// As extracts an *Error from err, the same shape as the errors.As
// convention, so call sites that may receive either a typed protocol error
// or an arbitrary Go error can branch once.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// Of returns err as an *Error, wrapping it as InternalError if it is not
// already typed. This is the "errors inside user actions propagate to the
// caller wrapped in Error with the original code if typed, else
// InternalError" rule from spec §7.
func Of(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Wrap(err)
}

// HTTPStatus maps a Kind to the HTTP status spec §7's error table names.
// Both manager/httpresp.go and connection/sse.go answer an HTTP request
// off the same wire error, so they share this one mapping rather than
// keeping two status tables in sync by hand.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case IncorrectConnToken:
		return http.StatusForbidden
	case ActorNotFound, ConnNotFound:
		return http.StatusNotFound
	case MissingActorHeader, MalformedMessage:
		return http.StatusBadRequest
	case MessageTooLong:
		return http.StatusRequestEntityTooLarge
	case Unsupported, WebSocketsNotEnabled:
		return http.StatusNotImplemented
	case ActionTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
