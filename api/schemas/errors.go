package schemas

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// -- Error Taxonomy --

// ErrorKind classifies every failure surfaced by a session.
type ErrorKind string

const (
	// KindTimeout: a blocking wait exceeded its budget.
	KindTimeout ErrorKind = "timeout"
	// KindCommand: the request is invalid for the platform or its input is malformed.
	KindCommand ErrorKind = "command"
	// KindEvaluation: lifecycle precondition violated or the environment rejected a submission.
	KindEvaluation ErrorKind = "evaluation"
	// KindBrowser: the driver could not be created or navigation failed.
	KindBrowser ErrorKind = "browser"
	// KindNetwork: registry fetch or parse failure.
	KindNetwork ErrorKind = "network"
)

// Error is the single root type for all session failures. Callers can catch
// broadly with errors.As(err, new(*Error)) or narrowly with errors.Is(err, ErrTimeout).
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	// Elapsed is set for timeouts.
	Elapsed time.Duration
	// State is the last observed state, when one is known.
	State string
	Cause error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrCommand    = &Error{Kind: KindCommand}
	ErrEvaluation = &Error{Kind: KindEvaluation}
	ErrBrowser    = &Error{Kind: KindBrowser}
	ErrNetwork    = &Error{Kind: KindNetwork}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Elapsed > 0 {
		fmt.Fprintf(&b, " (after %s)", e.Elapsed.Round(time.Millisecond))
	}
	if e.State != "" {
		fmt.Fprintf(&b, " [last state: %s]", e.State)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the kind sentinels. A sentinel is an Error with no Op and no Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithState records the last observed state.
func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

func newError(kind ErrorKind, op, format string, args ...interface{}) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Message: msg}
}

func NewTimeoutError(op string, elapsed time.Duration, format string, args ...interface{}) *Error {
	e := newError(KindTimeout, op, format, args...)
	e.Elapsed = elapsed
	return e
}

func NewCommandError(op, format string, args ...interface{}) *Error {
	return newError(KindCommand, op, format, args...)
}

func NewEvaluationError(op, format string, args ...interface{}) *Error {
	return newError(KindEvaluation, op, format, args...)
}

func NewBrowserError(op, format string, args ...interface{}) *Error {
	return newError(KindBrowser, op, format, args...)
}

func NewNetworkError(op, format string, args ...interface{}) *Error {
	return newError(KindNetwork, op, format, args...)
}

// AsError unwraps err to the taxonomy root.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is outside the taxonomy.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err belongs to the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
