package rag

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure by who can fix it.
type Kind string

const (
	// KindConfig marks startup misconfiguration (bad credentials, paths).
	KindConfig Kind = "config"
	// KindService marks an external service failure after retries.
	KindService Kind = "service"
	// KindIndex marks a vector or metadata index failure.
	KindIndex Kind = "index"
	// KindInput marks invalid caller input (blank question, bad file).
	KindInput Kind = "input"
)

// Error is a classified pipeline error. Stage names the pipeline step that
// failed (extract, chunk, embed, retrieve, generate, persist).
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// IsKind reports whether err is a pipeline error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
