package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/persistence/sqlite/migration"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ConnectionPool manages SQLite database connections with transaction support.
type ConnectionPool struct {
	db     *sql.DB
	config migration.SQLiteConfig
}

// NewConnectionPool opens a pool for config.
func NewConnectionPool(config migration.SQLiteConfig) (*ConnectionPool, error) {
	db, err := migration.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &ConnectionPool{db: db, config: config}, nil
}

// DB returns the underlying database handle.
func (cp *ConnectionPool) DB() *sql.DB {
	return cp.db
}

// Close closes the connection pool.
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (cp *ConnectionPool) Ping(ctx context.Context) error {
	return cp.db.PingContext(ctx)
}

// TransactionFunc runs inside a database transaction.
type TransactionFunc func(tx *sql.Tx) error

// WithTransaction runs fn in a transaction, committing on success and
// rolling back on error or panic. With an immediate-lock DSN the write lock
// is held from BEGIN, so read-check-write units serialize.
func (cp *ConnectionPool) WithTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ErrorMapper maps SQLite driver errors to persistence errors.
type ErrorMapper struct{}

// NewErrorMapper creates a new error mapper.
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// MapError maps SQLite result codes onto persistence sentinels. Errors that
// already carry a persistence sentinel, and non-driver errors, pass through.
func (em *ErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", persistence.ErrNotFound, err)
	}
	if isPersistenceError(err) {
		return err
	}

	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	code := sqliteErr.Code()
	switch code & 0xff {
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", persistence.ErrContention, err)
	case sqlite3lib.SQLITE_CONSTRAINT:
		switch code {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
		default:
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		}
	}
	return err
}

func isPersistenceError(err error) bool {
	for _, sentinel := range []error{
		persistence.ErrNotFound,
		persistence.ErrDuplicate,
		persistence.ErrConstraintViolation,
		persistence.ErrForeignKeyViolation,
		persistence.ErrContention,
		persistence.ErrStaleState,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// RetryConfig configures retry behavior for contended units of work.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry bounds used by the store.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    4,
		InitialDelay:  25 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// RetryHelper retries operations that fail with persistence.ErrContention.
type RetryHelper struct {
	config RetryConfig
	mapper *ErrorMapper
	logger *slog.Logger
}

// NewRetryHelper creates a new retry helper.
func NewRetryHelper(config RetryConfig, logger *slog.Logger) *RetryHelper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryHelper{config: config, mapper: NewErrorMapper(), logger: logger}
}

// RetryableFunc represents a function that can be retried.
type RetryableFunc func() error

// WithRetry runs fn, retrying with exponential backoff while it reports
// contention. Other errors are returned immediately, already mapped.
func (rh *RetryHelper) WithRetry(ctx context.Context, fn RetryableFunc) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = rh.config.InitialDelay
	policy.MaxInterval = rh.config.MaxDelay
	policy.Multiplier = rh.config.BackoffFactor

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := rh.mapper.MapError(fn())
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, persistence.ErrContention) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(rh.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			rh.logger.WarnContext(ctx, "retrying contended unit of work", "error", err, "retry_in", next)
		}),
	)
	return err
}
