// Package errors provides the typed error kinds raised by the scripture engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a book or chapter was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrFetch indicates a corpus document could not be retrieved
	ErrFetch = errors.New("corpus fetch failed")
	// ErrEmpty indicates a located chapter produced no verses
	ErrEmpty = errors.New("empty chapter")
)

// CorpusFetchError reports a network or HTTP failure retrieving a translation document.
type CorpusFetchError struct {
	Version string // Translation code (e.g., "acf", "nvi")
	URL     string // Location that was fetched, if known
	Status  int    // HTTP status code, 0 for transport failures
	Err     error  // Underlying error, if any
}

func (e *CorpusFetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("fetching corpus %s: unexpected status %d", e.Version, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetching corpus %s: %v", e.Version, e.Err)
	default:
		return fmt.Sprintf("fetching corpus %s failed", e.Version)
	}
}

func (e *CorpusFetchError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrFetch
}

// Is reports whether target is ErrFetch, so wrapped transport errors still match.
func (e *CorpusFetchError) Is(target error) bool {
	return target == ErrFetch
}

// BookNotFoundError reports an abbreviation absent from a translation.
type BookNotFoundError struct {
	Version string
	Book    string
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book not found: %s/%s", e.Version, e.Book)
}

func (e *BookNotFoundError) Unwrap() error {
	return ErrNotFound
}

// ChapterNotFoundError reports a chapter number missing from an otherwise located book.
type ChapterNotFoundError struct {
	Version string
	Book    string
	Chapter int
}

func (e *ChapterNotFoundError) Error() string {
	return fmt.Sprintf("chapter not found: %s/%s %d", e.Version, e.Book, e.Chapter)
}

func (e *ChapterNotFoundError) Unwrap() error {
	return ErrNotFound
}

// EmptyChapterError reports a chapter whose boundaries were located but
// from which no verses could be extracted.
type EmptyChapterError struct {
	Version string
	Book    string
	Chapter int
}

func (e *EmptyChapterError) Error() string {
	return fmt.Sprintf("no verses in %s/%s %d", e.Version, e.Book, e.Chapter)
}

func (e *EmptyChapterError) Unwrap() error {
	return ErrEmpty
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
