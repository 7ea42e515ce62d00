// Package giterr defines the error taxonomy shared by every core component.
//
// Authorship is best-effort: almost nothing here should ever cause the
// wrapped git command to fail. Each kind documents how its callers are
// expected to react.
package giterr

import "errors"

// Kind classifies an error so that callers upstream can decide whether to
// log it, surface it, or silently continue.
type Kind int

const (
	// KindEnvironment covers subprocess failures, missing repositories, and
	// non-UTF8 bytes from a subprocess. The affected operation aborts but
	// the wrapped command never does.
	KindEnvironment Kind = iota

	// KindParse covers malformed checkpoints, notes, or unknown event tags.
	// The record is skipped; processing continues.
	KindParse

	// KindAgent covers a transcript reader failing to refresh a prompt
	// (missing file, locked database, malformed JSON). The previously
	// captured transcript is retained.
	KindAgent

	// KindReconcilerPanic covers a panic recovered at the rewrite-hook
	// boundary. Post-command finalization is skipped for that invocation.
	KindReconcilerPanic

	// KindFatal covers being unable to open the repository at all, or
	// unable to launch the wrapped VCS binary. This is the only kind
	// that should propagate to a non-zero exit.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindParse:
		return "parse"
	case KindAgent:
		return "agent"
	case KindReconcilerPanic:
		return "reconciler_panic"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind, so callers can branch on
// errors.As without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Environment is a convenience constructor for KindEnvironment.
func Environment(op string, err error) error { return New(KindEnvironment, op, err) }

// Parse is a convenience constructor for KindParse.
func Parse(op string, err error) error { return New(KindParse, op, err) }

// Agent is a convenience constructor for KindAgent.
func Agent(op string, err error) error { return New(KindAgent, op, err) }

// Fatal is a convenience constructor for KindFatal.
func Fatal(op string, err error) error { return New(KindFatal, op, err) }

// ReconcilerPanic is a convenience constructor for KindReconcilerPanic,
// used at the recovery barrier around rewrite-hook handlers.
func ReconcilerPanic(op string, err error) error { return New(KindReconcilerPanic, op, err) }
