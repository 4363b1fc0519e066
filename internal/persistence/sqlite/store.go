// Package sqlite implements the persistence repositories on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata" // business time zones resolve without system zoneinfo

	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repos implements persistence.Repositories over a queryer.
type repos struct {
	q      queryer
	mapper *ErrorMapper
}

func newRepos(q queryer) *repos {
	return &repos{q: q, mapper: NewErrorMapper()}
}

// Store is the SQLite implementation of persistence.Store.
type Store struct {
	*repos
	pool   *ConnectionPool
	retry  *RetryHelper
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by config.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	logger = logger.With("component", "sqlite_store")
	return &Store{
		repos:  newRepos(pool.DB()),
		pool:   pool,
		retry:  NewRetryHelper(DefaultRetryConfig(), logger),
		logger: logger,
	}, nil
}

// WithRetryConfig replaces the contention retry bounds.
func (s *Store) WithRetryConfig(config RetryConfig) *Store {
	s.retry = NewRetryHelper(config, s.logger)
	return s
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewFileScanner(migrationFS),
		migration.NewSQLiteExecutor(s.pool.DB()),
		"migrations",
		s.logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate sqlite store: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// WithinTx runs fn in one immediate-lock transaction. Units that fail with
// contention are retried with backoff; fn must therefore be safe to re-run.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos persistence.Repositories) error) error {
	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			return fn(ctx, newRepos(tx))
		})
	})
}

// SaveCalendar replaces a calendar atomically.
func (s *Store) SaveCalendar(ctx context.Context, cal persistence.Calendar) error {
	return s.WithinTx(ctx, func(ctx context.Context, r persistence.Repositories) error {
		return r.SaveCalendar(ctx, cal)
	})
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// formatTime renders t as fixed-width UTC text so lexical order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

// requireAffected maps a zero-row write to persistence.ErrNotFound.
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
