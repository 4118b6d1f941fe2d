package kcov

import (
	"errors"
	"fmt"

	"github.com/kbarlow/kcov/internal/wire"
)

// Error is a structured error returned by the control plane, adapted
// from the teacher's errors.go: an operation tag, a facility error
// code, an optional handle for REMOTE_ENABLE failures, and the
// wrapped cause. Error() formats a message; Unwrap()/Is() let callers
// use errors.Is against either an *Error or a raw wire sentinel.
type Error struct {
	Op     string // control-plane request the error came from, e.g. "INIT_TRACE"
	Code   Code
	Handle uint64 // set only for handle-specific failures; 0 otherwise
	Inner  error
}

// Code is the facility's error-code enum, matching spec.md §6's exit
// codes one-to-one.
type Code string

const (
	CodeBusy            Code = "busy"
	CodeInvalidArgument Code = "invalid argument"
	CodeNoMemory        Code = "no memory"
	CodeExists          Code = "exists"
	CodeNotSupported    Code = "not supported"
	CodeNotATypewriter  Code = "not a typewriter"
)

func (e *Error) Error() string {
	if e.Handle != 0 {
		return fmt.Sprintf("kcov: %s: %s (handle=%d)", e.Op, e.Code, e.Handle)
	}
	return fmt.Sprintf("kcov: %s: %s", e.Op, e.Code)
}

// Unwrap returns the wrapped cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is lets errors.Is match either another *Error with the same Code, or
// the wire sentinel the Code corresponds to directly.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return errors.Is(e.Inner, target)
}

// NewHandleError constructs a control-plane error naming the handle
// that caused it (REMOTE_ENABLE's duplicate-handle case).
func NewHandleError(op string, handle uint64, code Code, inner error) *Error {
	return &Error{Op: op, Code: code, Handle: handle, Inner: inner}
}

// WrapError wraps an existing error with control-plane context,
// classifying it against the wire package's sentinel errors. If err is
// already an *Error its Op is updated and it is returned as-is
// otherwise.
func WrapError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if existing, ok := err.(*Error); ok {
		existing.Op = op
		return existing
	}
	return &Error{Op: op, Code: codeFor(err), Inner: err}
}

// codeFor classifies err against the wire package's sentinel set.
func codeFor(err error) Code {
	switch {
	case errors.Is(err, wire.ErrBusy):
		return CodeBusy
	case errors.Is(err, wire.ErrNoMemory):
		return CodeNoMemory
	case errors.Is(err, wire.ErrExists):
		return CodeExists
	case errors.Is(err, wire.ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, wire.ErrNotATypewriter):
		return CodeNotATypewriter
	default:
		return CodeInvalidArgument
	}
}

// IsCode reports whether err carries the given facility error code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
