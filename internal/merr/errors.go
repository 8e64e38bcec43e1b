// Package merr defines the error-kind taxonomy used across Mantle.
//
// Every error that crosses a component boundary is wrapped in one of the
// five kinds below so that callers (and eventually the GraphQL transport)
// can branch on kind without string-matching messages.
package merr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTransient Kind = iota
	KindDecode
	KindInvariant
	KindConflict
	KindProgrammer
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindDecode:
		return "decode"
	case KindInvariant:
		return "invariant"
	case KindConflict:
		return "conflict"
	case KindProgrammer:
		return "programmer"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged wrapper around an underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func new(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Transient(msg string, err error) *Error  { return new(KindTransient, msg, err) }
func Decode(msg string, err error) *Error     { return new(KindDecode, msg, err) }
func Invariant(msg string, err error) *Error  { return new(KindInvariant, msg, err) }
func Conflict(msg string, err error) *Error   { return new(KindConflict, msg, err) }
func Programmer(msg string, err error) *Error { return new(KindProgrammer, msg, err) }

// Is reports whether err (or anything it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// KindOf returns the kind of err if it is (or wraps) a *Error, and ok=false
// otherwise — callers outside the engine should treat ok=false as a
// programmer error (an unwrapped error escaped a component boundary).
func KindOf(err error) (Kind, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return 0, false
}
