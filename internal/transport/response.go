// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the orchestration API.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/venlo/procflow/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrValidation:     http.StatusUnprocessableEntity,
	model.ErrNotFound:       http.StatusNotFound,
	model.ErrInvalidState:   http.StatusConflict,
	model.ErrRetryExhausted: http.StatusConflict,
	model.ErrConflict:       http.StatusConflict,
	model.ErrPersistence:    http.StatusServiceUnavailable,
	model.ErrInternal:       http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. If err is not an *ErrorEnvelope, a generic 500 is returned.
func WriteError(w http.ResponseWriter, err error) {
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteBadBody writes the validation error for an unparseable request body.
func WriteBadBody(w http.ResponseWriter) {
	WriteError(w, model.NewValidationError(model.FieldError{
		Field: "body", Code: "invalid", Message: "invalid JSON body",
	}))
}

// decodeBody parses the request body into dst. An empty body is allowed and
// leaves dst zero-valued.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
