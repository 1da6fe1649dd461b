// Package handlers serves the booking and health chat HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/booking-assistant/internal/healthchat"
	"github.com/wolfman30/booking-assistant/internal/orchestrator"
	"github.com/wolfman30/booking-assistant/internal/speech"
	"github.com/wolfman30/booking-assistant/internal/transcripts"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound),
		errors.Is(err, healthchat.ErrSessionNotFound),
		errors.Is(err, transcripts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrTurnInProgress),
		errors.Is(err, healthchat.ErrReplyInProgress),
		errors.Is(err, speech.ErrCaptureActive),
		errors.Is(err, speech.ErrCaptureNotActive):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrEmptyUtterance),
		errors.Is(err, healthchat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, speech.ErrCapture):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrCaptureUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}
