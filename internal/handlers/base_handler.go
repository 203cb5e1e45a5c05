package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/xiaozining525-dotcom/bk/internal/middleware"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// errorStatuses maps error kinds to response statuses, first match wins
var errorStatuses = []struct {
	kind   error
	status int
}{
	{models.ErrNotFound, http.StatusNotFound},
	{models.ErrUnauthorized, http.StatusUnauthorized},
	{models.ErrInvalidCredentials, http.StatusUnauthorized},
	{models.ErrForbidden, http.StatusForbidden},
	{models.ErrPermissionDenied, http.StatusForbidden},
	{models.ErrSetupCompleted, http.StatusForbidden},
	{models.ErrTooManyAttempts, http.StatusTooManyRequests},
	{models.ErrValidation, http.StatusBadRequest},
	{models.ErrCaptchaFailed, http.StatusBadRequest},
	{models.ErrConflict, http.StatusBadRequest},
}

type BaseHandler struct {
	logger *zap.Logger
}

// respondJSON sends a successful JSON envelope
func (h *BaseHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(models.Envelope{Success: true, Data: data}); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends an error JSON envelope
func (h *BaseHandler) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.Envelope{Success: false, Error: message})
}

// respondServiceError maps err to a status and message.
// Unknown errors are logged and reported as 500.
func (h *BaseHandler) respondServiceError(w http.ResponseWriter, err error, op string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.kind) {
			h.respondError(w, e.status, errorMessage(err, e.kind))
			return
		}
	}

	h.logger.Error(op, zap.Error(err))
	h.respondError(w, http.StatusInternalServerError, "Internal server error")
}

// decodeJSON reads a JSON body of at most middleware.MaxRequestSize bytes into dst
func (h *BaseHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxRequestSize)).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	h.respondError(w, http.StatusBadRequest, "Invalid JSON")
	return false
}

// errorMessage strips the kind prefix added by fmt.Errorf("%w: message")
func errorMessage(err, kind error) string {
	msg := err.Error()
	if trimmed, ok := strings.CutPrefix(msg, kind.Error()+": "); ok {
		return trimmed
	}
	return msg
}

// setCache sets a shared cache lifetime in seconds, or disables caching for 0
func setCache(w http.ResponseWriter, seconds int) {
	if seconds <= 0 {
		w.Header().Set("Cache-Control", "no-store")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(seconds)+", s-maxage="+strconv.Itoa(seconds))
}

// NotFound answers unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(models.Envelope{Success: false, Error: "Not found"})
}

// MethodNotAllowed answers known routes called with an unsupported method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	NotFound(w, r)
}

func (h *BaseHandler) encode(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}
