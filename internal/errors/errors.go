// Package errors provides the error type used throughout the seat runtime.
//
// Construct new errors or wrap other errors with this package rather than
// the standard library (errors.New, fmt.Errorf) so that a stack trace and
// an error kind travel with the failure. Kinds let callers in the scheduler
// and backends branch on taxonomy (busy, in-progress, not-supported, ...)
// without string matching.
//
// Simple usage
//
//	errors.New(errors.NotFound, "no such session")
//	errors.Errorf(errors.Busy, "vt %d is already foreground", num)
//
// To add context to an existing error, use Wrap or Wrapf. The wrapped
// error's Kind is inherited unless overridden with WrapKind.
//
//	errors.Wrap(err, "activating session 3")
package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"seatrt/internal/errors/stack"
)

// Kind is the error taxonomy used across the core. It lets a caller
// distinguish "the session refused to deactivate in time" (TimedOut) from
// "the session is mid hand-off" (InProgress) without parsing messages.
type Kind int

const (
	// Unknown is the zero Kind; most errors constructed with the bare
	// standard library or from an external package carry this kind.
	Unknown Kind = iota
	InvalidArgument
	NoMemory
	NotSupported
	AlreadyExists
	NotFound
	Busy
	InProgress
	IOFault
	PermissionDenied
	HangUp
	TimedOut
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case NoMemory:
		return "no-memory"
	case NotSupported:
		return "not-supported"
	case AlreadyExists:
		return "already-exists"
	case NotFound:
		return "not-found"
	case Busy:
		return "busy"
	case InProgress:
		return "in-progress"
	case IOFault:
		return "io-fault"
	case PermissionDenied:
		return "permission-denied"
	case HangUp:
		return "hang-up"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// E is the error implementation used by this package.
type E struct {
	kind  Kind
	msg   string      // error message to be prepended to cause
	stk   stack.Stack // stack trace where this error was created
	cause error       // original error that caused this error if non-nil
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Kind reports the error's taxonomy entry. If e was created by Wrap/Wrapf
// without an explicit kind, it inherits the cause's kind when the cause is
// itself an *E, else Unknown.
func (e *E) Kind() Kind {
	return e.kind
}

// Unwrap implements the error Unwrap interface introduced in go1.13.
func (e *E) Unwrap() error {
	return e.cause
}

// unwrapper is a private interface of *E providing access to its fields.
// Access *E through this interface so *E can be embedded in user-defined
// custom error types.
type unwrapper interface {
	unwrap() (msg string, stk stack.Stack, cause error)
}

func (e *E) unwrap() (msg string, stk stack.Stack, cause error) {
	return e.msg, e.stk, e.cause
}

func formatChain(err error) string {
	var chain []string
	for err != nil {
		if e, ok := err.(unwrapper); ok {
			msg, stk, cause := e.unwrap()
			chain = append(chain, fmt.Sprintf("%s\n%v", msg, stk))
			err = cause
		} else {
			chain = append(chain, fmt.Sprintf("%s\n\tat ???", err.Error()))
			err = nil
		}
	}
	return strings.Join(chain, "\n")
}

// Format implements the fmt.Formatter interface. "%+v" prints the full
// chain with one stack trace per wrap.
func (e *E) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, formatChain(e))
	} else {
		io.WriteString(s, e.Error())
	}
}

// New creates a new error of the given kind with the given message. It
// also records the location where it was called.
func New(kind Kind, msg string) *E {
	s := stack.New(1)
	return &E{kind, msg, s, nil}
}

// Errorf creates a new error of the given kind. It is similar to the
// standard fmt.Errorf, but also records the call site.
func Errorf(kind Kind, format string, args ...interface{}) *E {
	s := stack.New(1)
	msg := fmt.Sprintf(format, args...)
	return &E{kind, msg, s, nil}
}

// Wrap creates a new error with the given message, wrapping cause. The
// kind is inherited from cause when cause is an *E, else Unknown. If cause
// is nil this behaves like New(Unknown, msg).
func Wrap(cause error, msg string) *E {
	s := stack.New(1)
	return &E{kindOf(cause), msg, s, cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, format string, args ...interface{}) *E {
	s := stack.New(1)
	msg := fmt.Sprintf(format, args...)
	return &E{kindOf(cause), msg, s, cause}
}

// WrapKind is Wrap but pins the resulting error's kind explicitly instead
// of inheriting it from cause; useful when a low-level IOFault should be
// reclassified as, say, Busy at a higher layer.
func WrapKind(kind Kind, cause error, msg string) *E {
	s := stack.New(1)
	return &E{kind, msg, s, cause}
}

func kindOf(err error) Kind {
	var e *E
	if As(err, &e) {
		return e.kind
	}
	return Unknown
}

// KindOf returns the Kind of err, walking Unwrap chains, or Unknown if err
// is nil or carries no *E in its chain.
func KindOf(err error) Kind {
	return kindOf(err)
}

// Is reports whether err's kind, anywhere in its chain, equals kind.
func Is(err error, kind Kind) bool {
	return kindOf(err) == kind
}

// Unwrap is a wrapper of the standard errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// As is a wrapper of the standard errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsErr is a wrapper of the standard errors.Is, named to avoid clashing
// with this package's kind-based Is above.
func IsErr(err, target error) bool {
	return errors.Is(err, target)
}
