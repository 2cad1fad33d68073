package article

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input. The request is rejected.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown id or slug, or a visibility mismatch.
	ErrNotFound = errors.New("not found")
	// ErrSlugConflict is returned by stores when the unique slug index rejects an insert.
	ErrSlugConflict = errors.New("slug conflict")
	// ErrUnavailable marks a store or blob store that could not be reached.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrUnauthenticated is returned by write operations called without a principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidTransition is a requested status outside draft/published.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)
)

// Invalidf builds an ErrValidation with a message.
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable wraps err as ErrUnavailable while keeping the original chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// IsFatal reports whether err must abort a whole multi-step operation rather
// than being recorded against a single item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
