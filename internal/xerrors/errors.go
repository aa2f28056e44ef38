package xerrors

import (
	"errors"
	"fmt"
)

// Repository sentinels. Storage implementations wrap these so callers can use errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindUnauthorized        Kind = "unauthorized"
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state_transition"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindAmountMismatch      Kind = "amount_mismatch"
	KindExpired             Kind = "expired"
	KindAlreadyProcessed    Kind = "already_processed"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindMalformedEvent      Kind = "malformed_event"
	KindInternal            Kind = "internal"
)

// Error is a classified error. Details carries optional structured context for clients.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetail attaches a key to the client-visible details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func InvalidInput(format string, args ...interface{}) *Error {
	return Newf(KindInvalidInput, format, args...)
}

func NotFound(what string) *Error {
	return Newf(KindNotFound, "%s not found", what)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// KindOf reports the kind of err. Unclassified errors are internal, except
// repository not-found sentinels which surface as not found.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var insufficient *InsufficientFundsError
	if errors.As(err, &insufficient) {
		return KindInsufficientFunds
	}
	var transition *InvalidTransitionError
	if errors.As(err, &transition) {
		return KindInvalidState
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retriable reports whether the caller may retry the same request unchanged.
func Retriable(err error) bool {
	return KindOf(err) == KindUpstreamUnavailable
}
