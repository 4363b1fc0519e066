package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/persistence/sqlite"
	"github.com/example/booking-pipeline/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides a migrated store backed by a temporary SQLite file
// for integration-style tests.
type SQLiteHarness struct {
	Store *sqlite.Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	store, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// Seed stores a business with its calendar, wallet and services.
func (h *SQLiteHarness) Seed(tb testing.TB, business persistence.Business, cal persistence.Calendar, services ...persistence.Service) {
	tb.Helper()
	ctx := context.Background()

	if err := h.Store.SaveBusiness(ctx, business); err != nil {
		tb.Fatalf("seed business: %v", err)
	}
	if err := h.Store.SaveCalendar(ctx, cal); err != nil {
		tb.Fatalf("seed calendar: %v", err)
	}
	if err := h.Store.CreateWallet(ctx, NewWallet(business.ID)); err != nil {
		tb.Fatalf("seed wallet: %v", err)
	}
	for _, s := range services {
		if err := h.Store.SaveService(ctx, s); err != nil {
			tb.Fatalf("seed service %s: %v", s.ID, err)
		}
	}
}
