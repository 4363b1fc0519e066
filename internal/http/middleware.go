package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/booking-pipeline/internal/application"
	"github.com/google/uuid"
)

// Headers set by the trusted identity layer in front of the service.
const (
	HeaderActorID       = "X-Actor-ID"
	HeaderActorRole     = "X-Actor-Role"
	HeaderActorBusiness = "X-Actor-Business"
	HeaderRequestID     = "X-Request-ID"
)

var (
	errMissingActor = errors.New("actor headers are required")
	errInvalidRole  = errors.New("actor role must be customer or operator")
)

// RequireActor resolves the calling actor from upstream headers.
func RequireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderActorID))
			if id == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingActor)
				return
			}

			actor := application.Actor{ID: id}
			switch application.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))) {
			case application.RoleCustomer:
				actor.Role = application.RoleCustomer
			case application.RoleOperator:
				actor.Role = application.RoleOperator
				actor.BusinessID = strings.TrimSpace(r.Header.Get(HeaderActorBusiness))
			default:
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidRole)
				return
			}

			ctx := ContextWithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request scoped logger and logs request completion.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
