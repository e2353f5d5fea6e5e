/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package contracts

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation indicates a malformed request that never reached the provider
	ErrorTypeValidation ErrorType = "Validation"
	// ErrorTypeNotFound indicates a missing subscription, resource group or VM
	ErrorTypeNotFound ErrorType = "NotFound"
	// ErrorTypeUnauthorized indicates authentication/authorization failure
	ErrorTypeUnauthorized ErrorType = "Unauthorized"
	// ErrorTypeThrottled indicates the provider rate limit was hit
	ErrorTypeThrottled ErrorType = "Throttled"
	// ErrorTypeTimeout indicates a provider call exceeded its deadline
	ErrorTypeTimeout ErrorType = "Timeout"
	// ErrorTypeUnavailable indicates the provider could not be reached
	ErrorTypeUnavailable ErrorType = "Unavailable"
	// ErrorTypeCancelled indicates a caller-initiated abort mid-flight
	ErrorTypeCancelled ErrorType = "Cancelled"
	// ErrorTypeInternal indicates any other provider failure
	ErrorTypeInternal ErrorType = "Internal"
)

// Error is a categorized failure from validation or a provider call.
// Message carries the provider diagnostic verbatim when one exists.
type Error struct {
	// Type categorizes the error
	Type ErrorType
	// Message describes the error
	Message string
	// Cause contains the underlying error
	Cause error
	// Retryable indicates if the operation is worth retrying
	Retryable bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeValidation,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeNotFound,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeUnauthorized,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// NewThrottledError creates a throttled error. Throttling is retryable by
// the caller with backoff, never retried internally.
func NewThrottledError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeThrottled,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeTimeout,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// NewUnavailableError creates an unavailable error
func NewUnavailableError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeUnavailable,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// NewCancelledError creates a cancelled error
func NewCancelledError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeCancelled,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeInternal,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// isType reports whether err is a contracts.Error of the given type.
func isType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsValidation returns true for validation errors
func IsValidation(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFound returns true for not found errors
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsUnauthorized returns true for unauthorized errors
func IsUnauthorized(err error) bool { return isType(err, ErrorTypeUnauthorized) }

// IsThrottled returns true for throttled errors
func IsThrottled(err error) bool { return isType(err, ErrorTypeThrottled) }

// IsCancelled returns true for cancelled errors
func IsCancelled(err error) bool { return isType(err, ErrorTypeCancelled) }

// IsRetryable returns true if err is a retryable contracts.Error
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsRetryable()
}

// TypeOf returns the error category, or ErrorTypeInternal for errors that
// did not come from this package.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}
