// Package apperr defines the error taxonomy shared by the alert pipeline.
//
// Components wrap these sentinels with fmt.Errorf("...: %w", err) so the HTTP
// layer can map any error to a status code with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrUnsupportedSensorType   = errors.New("unsupported sensor type")
	ErrUnknownNotificationType = errors.New("unknown notification type")
	ErrTransport               = errors.New("push transport failure")
	ErrBatchTooLarge           = errors.New("batch too large")
)

// Specific not-found errors. errors.Is(err, ErrNotFound) holds for all of them.
var (
	ErrModuleNotFound       = fmt.Errorf("module %w", ErrNotFound)
	ErrSensorNotFound       = fmt.Errorf("sensor %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
)

// ValidationError names the input field that was missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

// Missing returns a ValidationError for a required field that was not supplied.
func Missing(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// Invalid returns a ValidationError with a custom reason.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// HTTPStatus maps an error from the pipeline to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnsupportedSensorType),
		errors.Is(err, ErrUnknownNotificationType),
		errors.Is(err, ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short machine-readable name for the error class.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnsupportedSensorType):
		return "unsupported_sensor_type"
	case errors.Is(err, ErrUnknownNotificationType):
		return "unknown_notification_type"
	case errors.Is(err, ErrBatchTooLarge):
		return "batch_too_large"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	default:
		return "internal_error"
	}
}
