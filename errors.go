package ptiff

import (
	"errors"
	"fmt"
)

// Error kinds returned by every operation. Callers match them with errors.Is;
// the wrapped message carries the operation context.
var (
	ErrNotFound             = errors.New("ptiff: file not found")
	ErrMissingRequiredField = errors.New("ptiff: missing required field")
	ErrIndexOutOfRange      = errors.New("ptiff: index out of range")
	ErrInvalidRegion        = errors.New("ptiff: invalid region")
	ErrUnsupportedLayout    = errors.New("ptiff: unsupported layout")
	ErrConflict             = errors.New("ptiff: conflicting layout")
	ErrInvalidStrategy      = errors.New("ptiff: invalid strategy")
	ErrIOFailure            = errors.New("ptiff: i/o failure")
	ErrReadOnly             = errors.New("ptiff: container is read-only")
)

// ioError wraps a storage error so that it matches both ErrIOFailure and the
// underlying cause.
func ioError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrIOFailure, op, err)
}
