package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates the control plane rejected a mutation because
	// another one is still settling on the same environment.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// ControlPlaneError is any control-plane call failure that was not recognised
// as the "absent" signal. It is tagged with the environment or template the
// call targeted and the operation that was attempted.
type ControlPlaneError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the machine-readable error code reported by the provider,
	// or one of the ErrCode constants below.
	Code string `json:"code,omitempty"`

	// Resource is the environment or template name the call targeted.
	Resource string `json:"resource,omitempty"`

	// Operation is the control-plane operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ControlPlaneError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ControlPlaneError) Unwrap() error {
	return e.Err
}

func (e *ControlPlaneError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *ControlPlaneError) Is(target error) bool {
	t, ok := target.(*ControlPlaneError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *ControlPlaneError {
	return &ControlPlaneError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *ControlPlaneError {
	return &ControlPlaneError{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *ControlPlaneError {
	return &ControlPlaneError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *ControlPlaneError {
	return &ControlPlaneError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *ControlPlaneError) WithResource(name string) *ControlPlaneError {
	e.Resource = name
	return e
}

// WithOperation adds operation context to an error.
func (e *ControlPlaneError) WithOperation(operation string) *ControlPlaneError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *ControlPlaneError) WithCode(code string) *ControlPlaneError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ControlPlaneError) WithDetail(key string, value interface{}) *ControlPlaneError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// controlPlaneError tags err with the resource and operation. Errors that are
// already classified keep their class and code; anything else is permanent.
func controlPlaneError(err error, resource, operation string) *ControlPlaneError {
	var cpe *ControlPlaneError
	if errors.As(err, &cpe) {
		tagged := *cpe
		tagged.Message = fmt.Sprintf("%s failed", operation)
		tagged.Resource = resource
		tagged.Operation = operation
		return &tagged
	}
	return NewPermanentError(fmt.Sprintf("%s failed", operation), err).
		WithResource(resource).
		WithOperation(operation).
		WithCode(ErrCodeProviderFailed)
}

// EnvironmentNotFoundError is returned when a readiness wait is issued against
// a name that has no live environment.
type EnvironmentNotFoundError struct {
	Environment string
}

// Error implements the error interface.
func (e *EnvironmentNotFoundError) Error() string {
	return fmt.Sprintf("environment not found: %s", e.Environment)
}

// ReconciliationFailure aggregates the failures of a batch run. Siblings of a
// failed task always run to completion before it is reported.
type ReconciliationFailure struct {
	// Failed maps environment name to its failure cause.
	Failed map[string]error

	// First is the failure of the first environment, in request order.
	First error

	// Total is the number of environments in the batch.
	Total int
}

// Error implements the error interface.
func (e *ReconciliationFailure) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%d of %d environments failed [%s]: %v",
		len(e.Failed), e.Total, strings.Join(names, ", "), e.First)
}

// Unwrap returns the first underlying failure.
func (e *ReconciliationFailure) Unwrap() error {
	return e.First
}

// IsAbsent reports whether err is the provider's "invalid parameter" signal,
// which the control plane returns for names and applications it does not know.
func IsAbsent(err error) bool {
	var e *ControlPlaneError
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalidParameter
	}
	return false
}

// IsNotFound reports whether err is an EnvironmentNotFoundError.
func IsNotFound(err error) bool {
	var e *EnvironmentNotFoundError
	return errors.As(err, &e)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *ControlPlaneError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *ControlPlaneError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *ControlPlaneError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *ControlPlaneError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if re-running the batch is likely to succeed.
// Transient, throttled, and conflict errors are retryable.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeProviderFailed   = "PROVIDER_FAILED"
)
