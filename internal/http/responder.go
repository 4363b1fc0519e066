package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/booking-pipeline/internal/application"
)

var (
	errBadRequestBody = errors.New("invalid request body")
	errInvalidDate    = errors.New("from and to must be dates formatted as YYYY-MM-DD")
	errBadSignature   = errors.New("invalid webhook signature")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

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

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application errors onto HTTP statuses.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION",
			Message:   "request validation failed",
			Errors:    vErr.FieldErrors,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err)
		r.writeJSON(ctx, w, status, errorResponse{ErrorCode: "INTERNAL", Message: http.StatusText(status)})
		return
	}
	r.writeJSON(ctx, w, status, errorResponse{
		ErrorCode: strings.ToUpper(application.ErrorKind(err)),
		Message:   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrSlotNoLongerAvailable),
		errors.Is(err, application.ErrInvalidTransition),
		errors.Is(err, application.ErrExpiredTransaction),
		errors.Is(err, application.ErrWalletInactive),
		errors.Is(err, application.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, application.ErrInvalidRange),
		errors.Is(err, application.ErrPolicyDisallowed),
		errors.Is(err, application.ErrAdvanceWindowViolated),
		errors.Is(err, application.ErrInsufficientBalance),
		errors.Is(err, application.ErrInvalidAmount),
		errors.Is(err, application.ErrUnknownGatewayStatus),
		errors.Is(err, application.ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"errorCode,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
