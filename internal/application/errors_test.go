package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/settlement"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "validation failed" {
		t.Fatalf("expected generic message for nil error, got %q", err.Error())
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed: 1 field(s)" {
		t.Fatalf("expected field count in message, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	v := &ValidationError{}
	v.add("field", "bad")
	if !v.HasErrors() || v.FieldErrors["field"] != "bad" {
		t.Fatalf("expected add to record the field, got %v", v.FieldErrors)
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "not found", in: persistence.ErrNotFound, want: ErrNotFound},
		{name: "stale", in: fmt.Errorf("update: %w", persistence.ErrStaleState), want: ErrConflict},
		{name: "contention", in: persistence.ErrContention, want: ErrConflict},
		{name: "duplicate", in: persistence.ErrDuplicate, want: ErrConflict},
		{name: "transition", in: settlement.ErrInvalidTransition, want: ErrInvalidTransition},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapRepoError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("mapRepoError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	if mapRepoError(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
	other := errors.New("disk full")
	if mapRepoError(other) != other {
		t.Fatalf("expected unknown errors to pass through")
	}
}
