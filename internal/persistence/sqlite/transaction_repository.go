package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/settlement"
)

const transactionColumns = `
	id, business_id, appointment_id, amount_cents, currency, commission_percent, commission_cents,
	net_cents, status, gateway_ref, expires_at, paid_at, settled_at, released_at, created_at, updated_at`

// CreateTransaction inserts a new transaction. A second open transaction for
// the same appointment fails with persistence.ErrDuplicate.
func (r *repos) CreateTransaction(ctx context.Context, t persistence.Transaction) error {
	if t.ID == "" || t.AmountCents <= 0 {
		return persistence.ErrConstraintViolation
	}
	const query = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		t.ID, t.BusinessID, t.AppointmentID, t.AmountCents, t.Currency, t.CommissionPercent.String(), t.CommissionCents,
		t.NetCents, string(t.Status), nullableString(t.GatewayRef), formatTime(t.ExpiresAt),
		nullableTime(t.PaidAt), nullableTime(t.SettledAt), nullableTime(t.ReleasedAt),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateTransaction writes t if its stored status still equals expected.
func (r *repos) UpdateTransaction(ctx context.Context, t persistence.Transaction, expected settlement.Status) error {
	const query = `
		UPDATE transactions
		SET commission_cents = ?, net_cents = ?, status = ?, gateway_ref = ?, paid_at = ?,
			settled_at = ?, released_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query,
		t.CommissionCents, t.NetCents, string(t.Status), nullableString(t.GatewayRef), nullableTime(t.PaidAt),
		nullableTime(t.SettledAt), nullableTime(t.ReleasedAt), formatTime(t.UpdatedAt),
		t.ID, string(expected),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	if err := requireAffected(result); err != nil {
		if _, getErr := r.GetTransaction(ctx, t.ID); getErr != nil {
			return getErr
		}
		return persistence.ErrStaleState
	}
	return nil
}

// GetTransaction loads a transaction by ID.
func (r *repos) GetTransaction(ctx context.Context, id string) (persistence.Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return persistence.Transaction{}, r.mapper.MapError(err)
	}
	return t, nil
}

// GetTransactionByGatewayRef loads the transaction the gateway knows as ref.
func (r *repos) GetTransactionByGatewayRef(ctx context.Context, ref string) (persistence.Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE gateway_ref = ?`, ref)
	t, err := scanTransaction(row)
	if err != nil {
		return persistence.Transaction{}, r.mapper.MapError(err)
	}
	return t, nil
}

// ListExpirable returns open transactions that expired before now.
func (r *repos) ListExpirable(ctx context.Context, now time.Time, limit int) ([]persistence.Transaction, error) {
	const where = ` FROM transactions
		WHERE status IN ('pending', 'waiting_payment') AND expires_at < ?
		ORDER BY expires_at, id LIMIT ?`
	return r.listTransactions(ctx, `SELECT `+transactionColumns+where, formatTime(now), limit)
}

// ListReleasable returns paid transactions settled at or before cutoff whose
// net amount has not moved to the available balance yet.
func (r *repos) ListReleasable(ctx context.Context, cutoff time.Time, limit int) ([]persistence.Transaction, error) {
	const where = ` FROM transactions
		WHERE status = 'paid' AND released_at IS NULL AND settled_at IS NOT NULL AND settled_at <= ?
		ORDER BY settled_at, id LIMIT ?`
	return r.listTransactions(ctx, `SELECT `+transactionColumns+where, formatTime(cutoff), limit)
}

func (r *repos) listTransactions(ctx context.Context, query string, args ...any) ([]persistence.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var transactions []persistence.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return transactions, nil
}

func scanTransaction(row scanner) (persistence.Transaction, error) {
	var (
		t                               persistence.Transaction
		status                          string
		gatewayRef                      sql.NullString
		expiresAt, createdAt, updatedAt string
		paidAt, settledAt, releasedAt   sql.NullString
	)
	if err := row.Scan(
		&t.ID, &t.BusinessID, &t.AppointmentID, &t.AmountCents, &t.Currency, &t.CommissionPercent, &t.CommissionCents,
		&t.NetCents, &status, &gatewayRef, &expiresAt, &paidAt, &settledAt, &releasedAt, &createdAt, &updatedAt,
	); err != nil {
		return persistence.Transaction{}, err
	}
	t.Status = settlement.Status(status)
	t.GatewayRef = stringPtr(gatewayRef)

	var err error
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Transaction{}, err
	}
	if t.PaidAt, err = parseNullTime(paidAt); err != nil {
		return persistence.Transaction{}, err
	}
	if t.SettledAt, err = parseNullTime(settledAt); err != nil {
		return persistence.Transaction{}, err
	}
	if t.ReleasedAt, err = parseNullTime(releasedAt); err != nil {
		return persistence.Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Transaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Transaction{}, err
	}
	return t, nil
}
