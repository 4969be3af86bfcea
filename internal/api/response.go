package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

// ErrorObject is one entry of the envelope's errors list
type ErrorObject struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Response is the envelope every endpoint returns
type Response struct {
	Message string        `json:"message"`
	Data    any           `json:"data"`
	Errors  []ErrorObject `json:"errors"`
	Meta    any           `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	if resp.Errors == nil {
		resp.Errors = []ErrorObject{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeJSON(w, status, Response{
		Message: title,
		Errors:  []ErrorObject{{Type: errType, Title: title, Detail: detail}},
	})
}

// writeAppError maps a pipeline error to its status. Internal errors are
// logged and their detail withheld from the caller.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, title string, err error) {
	status := apperr.HTTPStatus(err)
	detail := err.Error()

	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		detail = verr.Error()
	}

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		h.logger.Error(title,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		detail = ""
	}

	h.writeError(w, status, apperr.Kind(err), title, detail)
}
