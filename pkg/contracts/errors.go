package contracts

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for caller decisions.
type ErrorClass string

const (
	// ErrorClassValidation indicates a structurally unusable contract
	// document. Never recoverable by retrying.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassProbe indicates a device probe failure: unreadable release
	// descriptor, failed kernel command, or a probe deadline exceeded.
	// The environment may recover, so probe errors are retryable.
	ErrorClassProbe ErrorClass = "probe"

	// ErrorClassInternal indicates an engine invariant violation.
	ErrorClassInternal ErrorClass = "internal"
)

// ContractError represents a classified error with context.
// nolint:revive // ContractError is intentionally named to distinguish from standard errors
type ContractError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Subject is the contract slug or probe subject the error concerns.
	Subject string `json:"subject,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information, such as
	// the per-field causes of a validation failure.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Subject != "" {
		if msg := e.unwrapMessage(); msg != "" {
			return fmt.Sprintf("[%s] %s (subject=%s): %s", e.Class, e.Message, e.Subject, msg)
		}
		return fmt.Sprintf("[%s] %s (subject=%s)", e.Class, e.Message, e.Subject)
	}
	if msg := e.unwrapMessage(); msg != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ContractError) Unwrap() error {
	return e.Err
}

func (e *ContractError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *ContractError) Is(target error) bool {
	t, ok := target.(*ContractError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *ContractError {
	return &ContractError{
		Class:   ErrorClassValidation,
		Message: message,
		Err:     err,
	}
}

// NewProbeError creates a new probe error.
func NewProbeError(message string, err error) *ContractError {
	return &ContractError{
		Class:   ErrorClassProbe,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *ContractError {
	return &ContractError{
		Class:   ErrorClassInternal,
		Message: message,
		Err:     err,
	}
}

// WithSubject adds the contract slug or probe subject to an error.
func (e *ContractError) WithSubject(subject string) *ContractError {
	e.Subject = subject
	return e
}

// WithCode adds an error code to an error.
func (e *ContractError) WithCode(code string) *ContractError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ContractError) WithDetail(key string, value interface{}) *ContractError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsValidation returns true if the error is classified as validation.
func IsValidation(err error) bool {
	var e *ContractError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsProbe returns true if the error is classified as a probe failure.
func IsProbe(err error) bool {
	var e *ContractError
	if errors.As(err, &e) {
		return e.Class == ErrorClassProbe
	}
	return false
}

// IsRetryable returns true if the error can be retried. Probe failures are
// environmental and retryable; validation failures are not.
func IsRetryable(err error) bool {
	return IsProbe(err)
}

// Common error codes.
const (
	ErrCodeMissingSlug       = "MISSING_SLUG"
	ErrCodeMissingType       = "MISSING_REQUIREMENT_TYPE"
	ErrCodeBadRange          = "BAD_VERSION_RANGE"
	ErrCodeBadDocument       = "BAD_DOCUMENT"
	ErrCodeDescriptorMissing = "DESCRIPTOR_UNREADABLE"
	ErrCodeNoVersionToken    = "NO_VERSION_TOKEN"
	ErrCodeProbeExec         = "PROBE_EXEC_FAILED"
	ErrCodeProbeTimeout      = "PROBE_TIMEOUT"
	ErrCodeInternal          = "INTERNAL_ERROR"
)
