package core

import (
	"errors"
	"fmt"
)

var (
	// ErrLogicViolation marks a breached internal invariant. It is a programming
	// error, never a recoverable runtime condition.
	ErrLogicViolation = errors.New("logic violation")
	// ErrEmptyBucket is returned when drawing from a class bucket that holds no entries.
	ErrEmptyBucket = fmt.Errorf("%w: draw from empty class bucket", ErrLogicViolation)
	// ErrCorruptRecord marks a record that cannot be framed or decoded.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrChecksumMismatch marks a record whose CRC32 trailer does not match its payload.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
	// ErrLayoutMismatch is returned when caller buffers or a sink do not match the dataset layout.
	ErrLayoutMismatch = errors.New("dataset layout mismatch")
	// ErrWriterClosed is returned when writing to a committed or aborted writer.
	ErrWriterClosed = errors.New("dataset writer is closed")
)

// ValidationError is a custom error type for validation failures.
type ValidationError struct {
	Message string
	Field   string // e.g., "input_configuration", "compression"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// CorruptionError reports a stream I/O failure tied to a specific record.
// It is fatal for the current rewrite pass.
type CorruptionError struct {
	Path    string
	EntryID uint32
	Offset  int64
	Err     error
}

func (e *CorruptionError) Error() string {
	path := e.Path
	if path == "" {
		path = "<stream>"
	}
	return fmt.Sprintf("corrupt dataset %s: entry=%d offset=%d: %v", path, e.EntryID, e.Offset, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// IsCorruption reports whether err was caused by an unreadable or truncated record.
func IsCorruption(err error) bool {
	var corruptionError *CorruptionError
	return errors.As(err, &corruptionError) || errors.Is(err, ErrCorruptRecord)
}

// IsLogicViolation reports whether err signals a breached internal invariant.
func IsLogicViolation(err error) bool {
	return errors.Is(err, ErrLogicViolation)
}
