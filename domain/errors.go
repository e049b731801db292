package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	ErrorTimeout ErrorKind = "timeout"
	ErrorBackend ErrorKind = "backend"
	ErrorUnknown ErrorKind = "unknown"
)

// Label returns the user-visible prefix for a failing turn's response.
func (k ErrorKind) Label() string {
	switch k {
	case ErrorTimeout:
		return "Timeout Error"
	case ErrorBackend:
		return "API Error"
	default:
		return "Error"
	}
}

// GenerationError tags a backend failure with its kind so callers can
// classify without inspecting error text.
type GenerationError struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Backend == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func NewGenerationError(kind ErrorKind, backend string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Backend: backend, Err: err}
}

// KindOf returns the kind of a generation failure. Errors not tagged by a
// backend adapter classify as unknown.
func KindOf(err error) ErrorKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ErrorUnknown
}
