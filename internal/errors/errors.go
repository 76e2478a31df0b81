package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a surfshell failure.
type Kind string

const (
	ErrMalformedInput    Kind = "MALFORMED_INPUT"    // unparseable URL typed by the user
	ErrStorageFailure    Kind = "STORAGE_FAILURE"    // durable read/write/delete
	ErrNetworkFailure    Kind = "NETWORK_FAILURE"    // favicon fetch or decode
	ErrNavigationFailure Kind = "NAVIGATION_FAILURE" // page load, back/forward
)

// Error is a classified failure. None of them are fatal; callers log the
// error and fall back to a safe state.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewMalformedInput reports input that could not be turned into a URL.
func NewMalformedInput(op, input string) *Error {
	return &Error{
		Kind:    ErrMalformedInput,
		Op:      op,
		Message: fmt.Sprintf("invalid URL %q", input),
	}
}

// NewStorageFailure wraps an error from the durable store.
func NewStorageFailure(op string, err error) *Error {
	return &Error{Kind: ErrStorageFailure, Op: op, Err: err}
}

// NewNetworkFailure wraps a fetch or decode error.
func NewNetworkFailure(op string, err error) *Error {
	return &Error{Kind: ErrNetworkFailure, Op: op, Err: err}
}

// NewNavigationFailure wraps a page load error.
func NewNavigationFailure(op string, err error) *Error {
	return &Error{Kind: ErrNavigationFailure, Op: op, Err: err}
}

// Is reports whether err, or anything it wraps, is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
