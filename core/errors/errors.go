// Package errors provides the error taxonomy shared by the importer, the
// parser and the stores.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrFormat indicates malformed bundle or markup content
	ErrFormat = errors.New("format error")
	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("already exists")
	// ErrUpstream indicates a store or embedding service call failed
	ErrUpstream = errors.New("upstream error")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "publication", "book", "bible")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// FormatError reports malformed input: a missing required archive entry, an
// unexpected element, or broken chapter/verse sequencing. Chapter and Verse
// are zero when the failure happened outside of one.
type FormatError struct {
	Source  string // Archive entry or document being read
	Book    string // Book code, if known
	Chapter int
	Verse   int
	Message string
	Err     error
}

func (e *FormatError) Error() string {
	var sb strings.Builder
	sb.WriteString("format error")
	if e.Source != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Source)
	}
	if e.Book != "" {
		fmt.Fprintf(&sb, " at %s %d:%d", e.Book, e.Chapter, e.Verse)
	} else if e.Chapter > 0 {
		fmt.Fprintf(&sb, " at %d:%d", e.Chapter, e.Verse)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *FormatError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrFormat
}

// Is lets errors.Is(err, ErrFormat) succeed even when Err wraps a cause.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// ConflictError represents an attempt to create a resource that already exists.
type ConflictError struct {
	Resource   string // Type of resource (e.g., "bible")
	Key        string // Unique key that collided
	ExistingID string // ID of the resource holding the key
	Reason     string // Optional detail
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s %q already exists", e.Resource, e.Key)
	if e.ExistingID != "" {
		msg += fmt.Sprintf(" (id %s)", e.ExistingID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	return ErrAlreadyExists
}

// UpstreamError wraps a failed call to the relational store or the
// embedding store. It is propagated unchanged; nothing retries it.
type UpstreamError struct {
	Service   string // "store" or "vector"
	Operation string
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Operation, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewFormat creates a FormatError without positional context.
func NewFormat(source, message string) *FormatError {
	return &FormatError{
		Source:  source,
		Message: message,
	}
}

// NewConflict creates a ConflictError
func NewConflict(resource, key, existingID string) *ConflictError {
	return &ConflictError{
		Resource:   resource,
		Key:        key,
		ExistingID: existingID,
	}
}

// NewUpstream creates an UpstreamError. If err is nil, returns nil.
func NewUpstream(service, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{
		Service:   service,
		Operation: operation,
		Err:       err,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
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
