// Package errdefs defines the error classes shared by the snapshot engine.
// Every error surfaced to a caller wraps exactly one of the sentinels below,
// so callers classify failures with errors.Is.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks client-fixable input problems: malformed cron
	// expressions, retention bounds out of range, empty required fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks unknown ids, including artifacts that belong to a
	// different target than the one requested.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks I/O failures while reading or writing artifact content.
	ErrStorage = errors.New("storage failure")

	// ErrSecurity marks a resolved path that escapes its sandbox root.
	ErrSecurity = errors.New("security violation")
)

// Validationf returns an ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the kind of record and its id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// Storage wraps an I/O error with the operation that failed.
// Returns nil when err is nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Security returns an ErrSecurity for a path that left its root.
func Security(path, root string) error {
	return fmt.Errorf("%w: %s escapes %s", ErrSecurity, path, root)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStorage reports whether err is a storage error.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }

// IsSecurity reports whether err is a security violation.
func IsSecurity(err error) bool { return errors.Is(err, ErrSecurity) }
