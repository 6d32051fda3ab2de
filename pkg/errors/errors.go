// Package errors provides the standardized application error type used
// across logvault's ingestion, indexing, search, and alarm pipeline.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Severity classifies how an error should propagate (see spec §7).
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Error codes, one per error kind enumerated in spec §7.
const (
	CodeQueryParse         = "QUERY_PARSE_ERROR"
	CodeRedactionInvalid   = "REDACTION_INVALID_PATTERN"
	CodeExtractionInvalid  = "EXTRACTION_INVALID_PATTERN"
	CodeFileIO             = "FILE_IO_ERROR"
	CodeFileUnreadable     = "FILE_UNREADABLE"
	CodeIndexCommit        = "INDEX_COMMIT_FAILED"
	CodeIndexDegraded      = "INDEX_DEGRADED"
	CodeSegmentCorrupt     = "SEGMENT_CORRUPT"
	CodeNotificationFailed = "NOTIFICATION_DISPATCH_FAILED"
	CodeCancelled          = "CANCELLED"
	CodeBackpressure       = "BACKPRESSURE"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeNotFound           = "NOT_FOUND"
)

// AppError is the structured error carried through the pipeline and
// surfaced to API callers as {error, details}.
type AppError struct {
	Code       string                 `json:"error"`
	Message    string                 `json:"details,omitempty"`
	Component  string                 `json:"-"`
	Operation  string                 `json:"-"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	Metadata   map[string]interface{} `json:"-"`
	Timestamp  time.Time              `json:"-"`
	Severity   Severity               `json:"-"`
	Retryable  bool                   `json:"-"`
}

// New creates a standardized error with medium severity.
func New(code, component, operation, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	return &AppError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Metadata:   make(map[string]interface{}),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium,
	}
}

// NewCritical creates a critical-severity error.
func NewCritical(code, component, operation, message string) *AppError {
	err := New(code, component, operation, message)
	err.Severity = SeverityCritical
	return err
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// Wrap attaches the underlying cause.
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithMetadata attaches a key/value pair for structured logging.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithRetryable marks whether the failing operation may be retried.
func (e *AppError) WithRetryable(retryable bool) *AppError {
	e.Retryable = retryable
	return e
}

// IsCritical reports whether the error is fatal to its component.
func (e *AppError) IsCritical() bool { return e.Severity == SeverityCritical }

// ToMap renders the error for structured logging.
func (e *AppError) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"error_code":      e.Code,
		"error_message":   e.Message,
		"error_component": e.Component,
		"error_operation": e.Operation,
		"error_severity":  string(e.Severity),
		"error_timestamp": e.Timestamp,
	}
	if e.Cause != nil {
		m["error_cause"] = e.Cause.Error()
	}
	for k, v := range e.Metadata {
		m["error_meta_"+k] = v
	}
	return m
}

// Cancelled builds the distinguished cancellation error (spec §7).
func Cancelled(component, operation string) *AppError {
	return New(CodeCancelled, component, operation, "operation cancelled")
}

// IsCancelled reports whether err is (or wraps) a cancellation error.
func IsCancelled(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == CodeCancelled
}

// AsAppError extracts an *AppError if err is or wraps one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// Wrapf wraps a plain error into an AppError, preserving an existing one.
func Wrapf(err error, code, component, operation, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return New(code, component, operation, message).Wrap(err)
}
