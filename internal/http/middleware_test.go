package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/booking-pipeline/internal/application"
)

func TestRequireActor(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantActor  application.Actor
	}{
		{name: "missing id", headers: map[string]string{HeaderActorRole: "customer"}, wantStatus: http.StatusUnauthorized},
		{name: "unknown role", headers: map[string]string{HeaderActorID: "u-1", HeaderActorRole: "admin"}, wantStatus: http.StatusUnauthorized},
		{
			name:       "customer",
			headers:    map[string]string{HeaderActorID: "u-1", HeaderActorRole: "Customer", HeaderActorBusiness: "ignored"},
			wantStatus: http.StatusOK,
			wantActor:  application.Actor{ID: "u-1", Role: application.RoleCustomer},
		},
		{
			name:       "operator",
			headers:    map[string]string{HeaderActorID: "op-1", HeaderActorRole: "operator", HeaderActorBusiness: "b-1"},
			wantStatus: http.StatusOK,
			wantActor:  application.Actor{ID: "op-1", Role: application.RoleOperator, BusinessID: "b-1"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got application.Actor
			handler := RequireActor(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				actor, ok := ActorFromContext(r.Context())
				if !ok {
					t.Fatalf("expected actor in request context")
				}
				got = actor
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantStatus == http.StatusOK && got != tc.wantActor {
				t.Fatalf("expected actor %+v, got %+v", tc.wantActor, got)
			}
		})
	}
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Fatalf("expected request logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot || rec.Header().Get(HeaderRequestID) != "req-42" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get(HeaderRequestID))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("expected generated request id")
	}
}
