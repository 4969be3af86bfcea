package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Missing("title"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("create: %w", Invalid("limit", "must be 1-100")), http.StatusBadRequest},
		{"module not found", fmt.Errorf("resolve: %w", ErrModuleNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"unsupported sensor", ErrUnsupportedSensorType, http.StatusBadRequest},
		{"unknown type", ErrUnknownNotificationType, http.StatusBadRequest},
		{"batch too large", ErrBatchTooLarge, http.StatusBadRequest},
		{"transport", ErrTransport, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := Missing("recipient")

	if err.Error() != "recipient is required" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	var ve *ValidationError
	if !errors.As(fmt.Errorf("wrap: %w", err), &ve) {
		t.Fatal("expected errors.As to find ValidationError")
	}
	if ve.Field != "recipient" {
		t.Errorf("expected field recipient, got %s", ve.Field)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationError should unwrap to ErrValidation")
	}
}

func TestNotFoundVariants(t *testing.T) {
	for _, err := range []error{ErrModuleNotFound, ErrSensorNotFound, ErrUserNotFound, ErrNotificationNotFound} {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%v should match ErrNotFound", err)
		}
		if Kind(err) != "not_found" {
			t.Errorf("Kind(%v) = %s", err, Kind(err))
		}
	}
}
