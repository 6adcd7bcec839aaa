// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure the notebook core can surface carries a machine-readable Kind so
// the host can decide whether to refuse a load, record a cell output or just
// print a message.
//
// E implements Unwrap, so the standard library errors.Is and errors.As keep
// working through it.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// MalformedNotebook indicates notebook bytes that are not valid JSON or lack a cells array.
	MalformedNotebook Kind = "malformed_notebook"
	// UnknownOutputKind indicates a stored output with an unrecognised output_type.
	UnknownOutputKind Kind = "unknown_output_kind"
	// EngineFailure indicates a non-success result or an error from the query engine.
	EngineFailure Kind = "engine_failure"
	// Cancelled indicates a run that was stopped through its context.
	Cancelled Kind = "cancelled"
	// NotOpen indicates an operation on a notebook that is not in the document store.
	NotOpen Kind = "not_open"
	// ConfigInvalid indicates configuration that cannot be used.
	ConfigInvalid Kind = "config_invalid"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
