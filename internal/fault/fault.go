// Package fault defines the structured error carried across plexsim.
//
// Configuration faults and resource faults are returned as errors.
// Invariant faults indicate a bug in the simulator itself and are raised
// with panic so they cannot be silently absorbed.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault.
type Kind int

const (
	// Config marks malformed or inconsistent model definitions.
	Config Kind = iota + 1
	// Invariant marks a violated internal invariant.
	Invariant
	// Timeout marks an exceeded wall-clock budget.
	Timeout
	// Exhausted marks an event queue that ran dry.
	Exhausted
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Invariant:
		return "invariant"
	case Timeout:
		return "timeout"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Error is a fault with the entity it concerns.
type Error struct {
	Kind   Kind
	Entity string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Entity != "" {
		msg = e.Entity + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return e.Kind.String() + " fault: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: Config})
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.Msg == ""
}

// Configf builds a configuration fault naming entity.
func Configf(entity, format string, args ...any) *Error {
	return &Error{Kind: Config, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// WrapConfig wraps err as a configuration fault naming entity.
func WrapConfig(err error, entity, format string, args ...any) *Error {
	return &Error{Kind: Config, Entity: entity, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Timeoutf builds a timeout fault.
func Timeoutf(format string, args ...any) *Error {
	return &Error{Kind: Timeout, Msg: fmt.Sprintf(format, args...)}
}

// Exhaustedf builds a queue-exhaustion fault.
func Exhaustedf(format string, args ...any) *Error {
	return &Error{Kind: Exhausted, Msg: fmt.Sprintf(format, args...)}
}

// Invariantf panics with an invariant fault. It never returns.
func Invariantf(entity, format string, args ...any) {
	panic(&Error{Kind: Invariant, Entity: entity, Msg: fmt.Sprintf(format, args...)})
}

// IsKind reports whether err carries a fault of kind k anywhere in its chain.
func IsKind(err error, k Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == k
	}
	return false
}

// Recover converts an invariant panic into an error. Other panics are
// re-raised. Use it at process boundaries only:
//
//	defer fault.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if fe, ok := r.(*Error); ok && fe.Kind == Invariant {
		*errp = fe
		return
	}
	panic(r)
}
