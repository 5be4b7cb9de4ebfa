package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable codes returned to clients.
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeInvalidMethod           = "INVALID_METHOD"
	CodeInvalidPostalCode       = "INVALID_POSTAL_CODE"
	CodeUnsupportedPostalCode   = "UNSUPPORTED_POSTAL_CODE"
	CodeInstallationUnavailable = "INSTALLATION_UNAVAILABLE"
	CodeMisconfiguredRule       = "MISCONFIGURED_RULE"
	CodeInvalidOrderID          = "INVALID_ORDER_ID"
	CodeNotFound                = "NOT_FOUND"
	CodeConflict                = "CONFLICT"
	CodeProviderUnavailable     = "PROVIDER_UNAVAILABLE"
	CodeForbidden               = "FORBIDDEN"
	CodeInternal                = "INTERNAL_ERROR"
)

// ErrValidation is returned when client input is malformed or out of range.
// Message is user-facing.
type ErrValidation struct {
	Code    string
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// ErrNotFound is returned when an order or preference is unknown.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrConflict is returned when data supplied in a later checkout step contradicts
// what was recorded in an earlier one.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// ErrUnsupportedZone is returned when no shipping rule covers a postal code.
type ErrUnsupportedZone struct {
	PostalCode string
	Message    string
}

func (e *ErrUnsupportedZone) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("postal code %s is not covered by any shipping rule", e.PostalCode)
}

// ErrConfiguration is an operator error in the delivery configuration. It is
// logged in full and never shown to the client verbatim.
type ErrConfiguration struct {
	Message string
}

func (e *ErrConfiguration) Error() string {
	return "configuration error: " + e.Message
}

// ErrProviderUnavailable is returned when the payment provider could not be
// used. Status is the HTTP status surfaced to the client (502 or 503).
type ErrProviderUnavailable struct {
	Status int
	Cause  error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Cause != nil {
		return "payment provider unavailable: " + e.Cause.Error()
	}
	return "payment provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error {
	return e.Cause
}

// ErrForbidden is returned on a missing or invalid CSRF token or a disallowed origin.
type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "forbidden"
}

// Validation builds an ErrValidation with the generic validation code.
func Validation(message string) *ErrValidation {
	return &ErrValidation{Code: CodeValidation, Message: message}
}

// HTTPStatus maps an error from the taxonomy to the HTTP status returned to clients.
func HTTPStatus(err error) int {
	var (
		validation  *ErrValidation
		notFound    *ErrNotFound
		conflict    *ErrConflict
		unsupported *ErrUnsupportedZone
		configErr   *ErrConfiguration
		provider    *ErrProviderUnavailable
		forbidden   *ErrForbidden
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity
	case errors.As(err, &configErr):
		return http.StatusInternalServerError
	case errors.As(err, &provider):
		if provider.Status != 0 {
			return provider.Status
		}
		return http.StatusServiceUnavailable
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable code for err.
func Code(err error) string {
	var (
		validation  *ErrValidation
		notFound    *ErrNotFound
		conflict    *ErrConflict
		unsupported *ErrUnsupportedZone
		configErr   *ErrConfiguration
		provider    *ErrProviderUnavailable
		forbidden   *ErrForbidden
	)

	switch {
	case errors.As(err, &validation):
		if validation.Code != "" {
			return validation.Code
		}
		return CodeValidation
	case errors.As(err, &notFound):
		return CodeNotFound
	case errors.As(err, &conflict):
		return CodeConflict
	case errors.As(err, &unsupported):
		return CodeUnsupportedPostalCode
	case errors.As(err, &configErr):
		return CodeMisconfiguredRule
	case errors.As(err, &provider):
		return CodeProviderUnavailable
	case errors.As(err, &forbidden):
		return CodeForbidden
	default:
		return CodeInternal
	}
}

// IsClientVisible reports whether err's message may be shown to the end user.
// Configuration, provider and unexpected errors are reduced to a generic message.
func IsClientVisible(err error) bool {
	var (
		validation  *ErrValidation
		notFound    *ErrNotFound
		conflict    *ErrConflict
		unsupported *ErrUnsupportedZone
		forbidden   *ErrForbidden
	)
	return errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &conflict) ||
		errors.As(err, &unsupported) ||
		errors.As(err, &forbidden)
}
