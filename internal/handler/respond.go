package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/proctorly/proctord/internal/apperr"
)

// response is the envelope wrapping every API reply.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Success: true, Data: data}); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var validationErrs validator.ValidationErrors
	var appErr *apperr.Error
	switch {
	case errors.As(err, &validationErrs):
		status = http.StatusBadRequest
		message = validationErrs.Error()
	case errors.As(err, &appErr):
		status = apperr.StatusCode(appErr)
		message = appErr.Message
	case errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
		message = "not found"
	default:
		slog.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(response{Success: false, Error: message}); encErr != nil {
		slog.Error("encode error response", "error", encErr)
	}
}

// decode parses the request body into v and runs struct validation.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Invalid("invalid request body: %v", err)
	}
	return h.validate.Struct(v)
}
