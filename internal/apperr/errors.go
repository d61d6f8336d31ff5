// Package apperr defines the error taxonomy shared by the bridge, the
// operation handlers, and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrUnsupported = errors.New("unsupported action")
	ErrClosed      = errors.New("executor closed")
)

// Kind classifies an error for status mapping.
type Kind int

const (
	// KindHost covers any failure raised while running against the collection.
	KindHost Kind = iota
	KindValidation
	KindNotFound
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	default:
		return "host"
	}
}

// kindError carries a human message while still matching its sentinel
// through errors.Is.
type kindError struct {
	sentinel error
	msg      string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.sentinel }

// Validation returns a validation failure whose message is exactly the
// formatted text.
func Validation(format string, args ...any) error {
	return &kindError{sentinel: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found failure.
func NotFound(format string, args ...any) error {
	return &kindError{sentinel: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Unsupported returns an unsupported-action failure.
func Unsupported(format string, args ...any) error {
	return &kindError{sentinel: ErrUnsupported, msg: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Unknown errors are host failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindHost
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	default:
		return KindHost
	}
}
