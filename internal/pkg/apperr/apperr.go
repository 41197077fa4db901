// Package apperr defines the closed error taxonomy shared by the pipeline
// stages and the HTTP layer. Handlers map each kind to an HTTP status; the
// orchestrator uses the kinds to decide whether a stage failure aborts the
// job or degrades gracefully.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	// Validation marks malformed or unsafe input. Fails the stage fast;
	// never forwarded to downstream collaborators. HTTP 400.
	Validation Kind = iota
	// NotFound marks a missing job, artifact, or profile. HTTP 404.
	NotFound
	// Conflict marks a duplicate identity. HTTP 409.
	Conflict
	// External marks a transcription or model call failure after all
	// retries/fallbacks were exhausted.
	External
	// Parse marks a model reply that is not valid JSON. Non-fatal: the
	// scoring stage degrades instead of failing the job.
	Parse
	// Timeout marks an exhausted client-side polling budget. The server
	// pipeline may still be running.
	Timeout
)

var kindNames = map[Kind]string{
	Validation: "validation",
	NotFound:   "not_found",
	Conflict:   "conflict",
	External:   "external_service",
	Parse:      "parse",
	Timeout:    "timeout",
}

// Error is a classified error with an operator-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", kindNames[e.Kind], e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", kindNames[e.Kind], e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or ok=false for unclassified errors.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
