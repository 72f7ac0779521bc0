// Package errors provides centralized error definitions and error handling utilities
// for shmchat. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of a specific subsystem:
//   - SegmentError: a shared-memory segment cannot be created, opened, or
//     has no room left for an object (allocation failures)
//   - SyncError: a cross-process mutex or condition variable failed (for
//     example a lock abandoned by a crashed peer)
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewSegmentError("failed to allocate object", errors.ErrSegmentFull).
//	    WithSegment("shared_memory").WithObject("history")
//
//	if errors.Is(err, errors.ErrSegmentFull) { ... }
//
//	var segErr *errors.SegmentError
//	if errors.As(err, &segErr) { ... }
//
// # Error Classification
//
// Allocation and primitive failures are fatal: they are never retried and
// terminate the session with a diagnostic. Use IsFatal to classify.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that end the session.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Segment-related sentinel errors
var (
	// ErrSegmentOpen indicates that the backing object could not be created or mapped.
	ErrSegmentOpen = New("segment cannot be opened")
	// ErrSegmentFull indicates that the segment has no room for another object.
	ErrSegmentFull = New("segment capacity exhausted")
	// ErrSegmentCorrupt indicates a header or directory that does not validate.
	ErrSegmentCorrupt = New("segment data corrupted")
	// ErrSegmentClosed indicates a segment whose last participant is tearing it down.
	ErrSegmentClosed = New("segment is closed")
)

// Synchronization-related sentinel errors
var (
	// ErrLockAbandoned indicates the shared mutex is held by a process that no longer exists.
	ErrLockAbandoned = New("lock abandoned by a dead process")
	// ErrPrimitiveFailed indicates an OS-level failure of a futex operation.
	ErrPrimitiveFailed = New("synchronization primitive failed")
)

// Log-related sentinel errors
var (
	// ErrLogFull indicates an append-only log with no free slot.
	ErrLogFull = New("message log is full")
	// ErrRecordTooLarge indicates a message that does not fit in a log slot.
	ErrRecordTooLarge = New("message too large")
	// ErrNotAttached indicates a detach without a matching attach.
	ErrNotAttached = New("participant not attached")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ChatError is the base interface for all shmchat errors.
type ChatError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsFatal returns true if the session cannot continue after this error.
	IsFatal() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	fatal      bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsFatal returns whether the error ends the session.
func (e *baseError) IsFatal() bool {
	return e.fatal
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatContext renders "prefix [k=v, ...]: message: cause".
func formatContext(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SegmentError represents a failure to create, open, or allocate inside a
// shared-memory segment.
//
// Example:
//
//	err := errors.NewSegmentError("failed to allocate object", errors.ErrSegmentFull)
//	err = err.WithSegment("shared_memory").WithObject("history")
//	fmt.Println(err) // "segment error [segment=shared_memory, object=history]: failed to allocate object: segment capacity exhausted"
type SegmentError struct {
	baseError
	Segment string
	Object  string
}

// NewSegmentError creates a new SegmentError. Segment errors are fatal.
func NewSegmentError(message string, cause error) *SegmentError {
	return &SegmentError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			fatal:      true,
			userFacing: true,
		},
	}
}

// WithSegment adds the segment name to the error context.
func (e *SegmentError) WithSegment(name string) *SegmentError {
	e.Segment = name
	return e
}

// WithObject adds the named object to the error context.
func (e *SegmentError) WithObject(name string) *SegmentError {
	e.Object = name
	return e
}

// Error returns the formatted error message.
func (e *SegmentError) Error() string {
	var parts []string
	if e.Segment != "" {
		parts = append(parts, fmt.Sprintf("segment=%s", e.Segment))
	}
	if e.Object != "" {
		parts = append(parts, fmt.Sprintf("object=%s", e.Object))
	}
	return formatContext("segment error", parts, e.message, e.cause)
}

// SyncError represents a failure of a cross-process mutex or condition variable.
//
// Example:
//
//	err := errors.NewSyncError("mutex owner died", errors.ErrLockAbandoned).WithOwnerPID(4242)
type SyncError struct {
	baseError
	Primitive string
	OwnerPID  int
}

// NewSyncError creates a new SyncError. Primitive failures are fatal.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			fatal:      true,
			userFacing: true,
		},
	}
}

// WithPrimitive names the primitive that failed ("mutex", "condition").
func (e *SyncError) WithPrimitive(name string) *SyncError {
	e.Primitive = name
	return e
}

// WithOwnerPID records the PID that held the primitive.
func (e *SyncError) WithOwnerPID(pid int) *SyncError {
	e.OwnerPID = pid
	return e
}

// Error returns the formatted error message.
func (e *SyncError) Error() string {
	var parts []string
	if e.Primitive != "" {
		parts = append(parts, fmt.Sprintf("primitive=%s", e.Primitive))
	}
	if e.OwnerPID != 0 {
		parts = append(parts, fmt.Sprintf("owner_pid=%d", e.OwnerPID))
	}
	return formatContext("sync error", parts, e.message, e.cause)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("segment", "shared_memory")
//	fmt.Println(err) // "segment 'shared_memory' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("object name too long").WithField("name").WithValue(name)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField sets the field that failed validation.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatContext("validation error", parts, e.message, nil)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsFatal returns true if the error must terminate the session.
// Segment and sync errors are fatal; so are the bare sentinels for
// allocation and primitive failures, wherever they appear in the chain.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var chatErr ChatError
	if As(err, &chatErr) && chatErr.IsFatal() {
		return true
	}

	for _, sentinel := range []error{
		ErrSegmentOpen, ErrSegmentFull, ErrSegmentCorrupt, ErrSegmentClosed,
		ErrLockAbandoned, ErrPrimitiveFailed,
	} {
		if Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var chatErr ChatError
	if As(err, &chatErr) {
		return chatErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ChatError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var chatErr ChatError
	if As(err, &chatErr) {
		return chatErr.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
