package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"passport/internal/apperr"
)

const maxJSONBodyBytes = 1 << 16

var errPayloadTooLarge = errors.New("payload too large")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeServiceError renders a domain error with the status of its kind.
// Untyped errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}

	status := appErr.Status()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", appErr.Code, "error", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeError(w, status, appErr.Code, appErr.Message)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Payload too large")
		return
	}
	// Generic message so JSON parser details do not leak.
	writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
}

// parseForm reads an application/x-www-form-urlencoded body with a size limit.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return r.ParseForm()
}
