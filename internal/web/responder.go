package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"meetmetrics/internal/logging"
	"meetmetrics/internal/models"
)

type errorResponse struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, r.logger)
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeMessage(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError converts err into a user facing JSON error.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := models.ErrorKind(err)
	status := statusFor(kind)
	r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err, "error_kind", kind)
	r.writeMessage(ctx, w, status, kind, models.UserMessage(err))
}

func statusFor(kind string) int {
	switch kind {
	case "not_authenticated":
		return http.StatusUnauthorized
	case "replayed_code", "exchange", "unsupported_provider":
		return http.StatusBadRequest
	case "not_implemented":
		return http.StatusNotImplemented
	case "provider", "delivery":
		return http.StatusBadGateway
	case "invalid_range", "invalid_schedule":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
