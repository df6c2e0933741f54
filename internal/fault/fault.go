// Package fault defines the error taxonomy shared by every storage-facing
// component.
//
// All typed errors carry a Kind:
//   - NotFound: a reference did not resolve to an existing row
//   - BadRequest: malformed caller input (filter, cursor, type name, paging)
//   - Conflict: a uniqueness violation not resolved by retry
//   - Generic: an unclassified storage failure or broken internal invariant
//
// Driver-level errors are classified once, at the adapter boundary; nothing
// above that layer inspects driver error types.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a Fault.
type Kind string

const (
	// KindNotFound indicates a reference that does not resolve.
	KindNotFound Kind = "NOT_FOUND"

	// KindBadRequest indicates malformed caller input.
	KindBadRequest Kind = "BAD_REQUEST"

	// KindConflict indicates an unresolved uniqueness violation.
	KindConflict Kind = "CONFLICT"

	// KindGeneric indicates an unclassified storage failure or a broken
	// internal invariant (e.g. a row-count contract violation).
	KindGeneric Kind = "GENERIC"
)

// Fault is a typed error surfaced to callers of the store.
//
// NotFound, BadRequest and Conflict are actionable for callers; Generic is
// opaque and intended for operators and logs.
type Fault struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (f *Fault) Unwrap() error {
	return f.Err
}

// NotFound creates a NotFound fault.
func NotFound(format string, args ...any) *Fault {
	return &Fault{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// BadRequest creates a BadRequest fault.
func BadRequest(format string, args ...any) *Fault {
	return &Fault{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a Conflict fault.
func Conflict(format string, args ...any) *Fault {
	return &Fault{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Generic wraps an underlying error as a Generic fault with context.
func Generic(err error, format string, args ...any) *Fault {
	return &Fault{Kind: KindGeneric, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a Fault, and
// KindGeneric otherwise. A nil error has no kind; callers must check for
// nil first.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindGeneric
}

// IsNotFound reports whether err is a NotFound fault.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return is(err, KindNotFound)
}

// IsBadRequest reports whether err is a BadRequest fault.
func IsBadRequest(err error) bool {
	return is(err, KindBadRequest)
}

// IsConflict reports whether err is a Conflict fault.
func IsConflict(err error) bool {
	return is(err, KindConflict)
}

func is(err error, k Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == k
	}
	return false
}
