package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the routing engine failure taxonomy.
const (
	CodeConfigurationUnavailable = "CONFIGURATION_UNAVAILABLE"
	CodePermissionDenied         = "PERMISSION_DENIED"
	CodeDeliveryFailed           = "DELIVERY_FAILED"
	CodeAuthorizationDenied      = "AUTHORIZATION_DENIED"
	CodeNotATicketChannel        = "NOT_A_TICKET_CHANNEL"
	CodeValidationFailed         = "VALIDATION_FAILED"
	CodeNotFound                 = "NOT_FOUND"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeInternalError            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors. Message is safe to show to
// the user who triggered the action; Err carries the underlying cause for
// logs only.
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

// NewConfigurationUnavailable signals that the routing workspace or category
// cannot be reached. Not retried; the caller apologizes to the user.
func NewConfigurationUnavailable(message string, err error) error {
	return &DomainError{
		Code:       CodeConfigurationUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewPermissionDenied signals the platform rejected a channel mutation.
func NewPermissionDenied(message string, err error) error {
	return &DomainError{
		Code:       CodePermissionDenied,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewDeliveryFailed signals a direct message to a user bounced. Reported
// where the attempt happened, never retried automatically, never fatal.
func NewDeliveryFailed(message string, err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewAuthorizationDenied rejects a non-staff caller before any side effect.
func NewAuthorizationDenied(message string) error {
	return NewDomainError(CodeAuthorizationDenied, message, http.StatusForbidden, nil)
}

// NewNotATicketChannel rejects a command invoked outside a ticket context.
func NewNotATicketChannel(message string) error {
	return NewDomainError(CodeNotATicketChannel, message, http.StatusUnprocessableEntity, nil)
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
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
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
