package application

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"":                         nil,
		"slot_no_longer_available": fmt.Errorf("book: %w", ErrSlotNoLongerAvailable),
		"advance_window_violated":  ErrAdvanceWindowViolated,
		"expired_transaction":      ErrExpiredTransaction,
		"insufficient_balance":     ErrInsufficientBalance,
		"validation":               &ValidationError{FieldErrors: map[string]string{"a": "b"}},
		"unexpected":               errors.New("boom"),
	}
	for want, err := range tests {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
