package util

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewTransitionInvalid signals an illegal status transition, a business rule
// violation surfaced to the caller.
func NewTransitionInvalid(current, next string) error {
	return NewDomainError("TRANSITION_INVALID",
		fmt.Sprintf("cannot transition from %s to %s", current, next),
		http.StatusUnprocessableEntity,
		map[string]any{"currentStatus": current, "requestedStatus": next})
}

// NewAuthorityUnavailable signals that the remote status authority could not
// serve a write of record.
func NewAuthorityUnavailable(err error) error {
	return &DomainError{
		Code:       "AUTHORITY_UNAVAILABLE",
		Message:    "status authority unavailable",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewBrokerUnavailable signals a broker connect/publish failure. It is never
// surfaced synchronously to API callers; it exists for logs and health output.
func NewBrokerUnavailable(err error) error {
	return &DomainError{
		Code:       "BROKER_UNAVAILABLE",
		Message:    "message broker unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
