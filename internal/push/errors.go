package push

import (
	"fmt"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

// Transport error codes
const (
	CodeInvalidRecipient = "messaging/invalid-recipient"
	CodeInvalidArgument  = "messaging/invalid-argument"
	CodeUnregistered     = "messaging/registration-token-not-registered"
	CodeThirdPartyAuth   = "messaging/third-party-auth-error"
	CodeQuotaExceeded    = "messaging/quota-exceeded"
	CodeUnavailable      = "messaging/unavailable"
	CodeInternal         = "messaging/internal-error"
	CodeUnknown          = "messaging/unknown-error"
	CodeCircuitOpen      = "messaging/circuit-open"
)

// TransportError is a delivery failure reported by the push backend.
// It is never retried here.
type TransportError struct {
	Code    string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the transport sentinel and the backend cause
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperr.ErrTransport}
	}
	return []error{apperr.ErrTransport, e.Err}
}

func newTransportError(code string, err error) *TransportError {
	return &TransportError{
		Code:    code,
		Message: err.Error(),
		Err:     err,
	}
}
