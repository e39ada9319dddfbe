package controllers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/store"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}

// WriteError renders err as {success:false, statusCode, message}. Anything
// that is not an *models.AppError or a known store error becomes a 500 and
// only its cause is logged.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := toAppError(err)
	status := appErr.StatusCode()

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	}
	if id := RequestIDFromContext(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Debug("request rejected", attrs...)
	}

	writeJSON(w, status, models.ErrorResponse{
		Success:    false,
		StatusCode: status,
		Message:    appErr.Message,
	})
}

func toAppError(err error) *models.AppError {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var dup *store.DuplicateKeyError
	if errors.As(err, &dup) {
		return &models.AppError{Kind: models.KindConflict, Message: dup.Field + " already exists.", Err: err}
	}
	if errors.Is(err, store.ErrNotFound) {
		return &models.AppError{Kind: models.KindNotFound, Message: "Not found", Err: err}
	}
	return models.NewInternalError(err)
}
