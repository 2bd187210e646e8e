// Package handler implements the HTTP API. Handlers decode requests,
// call the service layer and translate domain errors to status codes;
// they hold no business logic themselves.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/fetch"
)

// ErrorResponse is the error shape every endpoint returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("encoding JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps domain errors to HTTP. Fetch errors surface with a
// status describing what went wrong upstream; everything else falls
// back to a generic 500 so internals never leak to the client.
func writeError(w http.ResponseWriter, err error) {
	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) {
		status := http.StatusBadRequest
		errorType := "fetch_error"
		if fetchErr.Kind == fetch.KindTimeout {
			status = http.StatusRequestTimeout
			errorType = "fetch_timeout"
		}
		writeJSON(w, status, ErrorResponse{Error: errorType, Message: fetchErr.Error()})
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{Error: errorType, Message: appErr.Message})
		return
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON parses a request body into dst with a uniform error.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
