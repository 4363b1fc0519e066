package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/wallet"
)

// CreateWallet inserts the wallet of a business.
func (r *repos) CreateWallet(ctx context.Context, w persistence.Wallet) error {
	if w.BusinessID == "" {
		return persistence.ErrConstraintViolation
	}
	const query = `
		INSERT INTO wallets (
			business_id, balance_cents, pending_balance_cents, total_received_cents, total_withdrawn_cents,
			active, payout_destination, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		w.BusinessID, w.BalanceCents, w.PendingBalanceCents, w.TotalReceivedCents, w.TotalWithdrawnCents,
		w.Active, w.PayoutDestination, formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetWallet loads the wallet of a business.
func (r *repos) GetWallet(ctx context.Context, businessID string) (persistence.Wallet, error) {
	const query = `
		SELECT business_id, balance_cents, pending_balance_cents, total_received_cents, total_withdrawn_cents,
			active, payout_destination, created_at, updated_at
		FROM wallets WHERE business_id = ?`

	var (
		w                    persistence.Wallet
		createdAt, updatedAt string
	)
	err := r.q.QueryRowContext(ctx, query, businessID).Scan(
		&w.BusinessID, &w.BalanceCents, &w.PendingBalanceCents, &w.TotalReceivedCents, &w.TotalWithdrawnCents,
		&w.Active, &w.PayoutDestination, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.Wallet{}, r.mapper.MapError(err)
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Wallet{}, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Wallet{}, err
	}
	return w, nil
}

// UpdateWallet writes balances and totals. The table's CHECK constraints
// reject negative values with persistence.ErrConstraintViolation.
func (r *repos) UpdateWallet(ctx context.Context, w persistence.Wallet) error {
	const query = `
		UPDATE wallets
		SET balance_cents = ?, pending_balance_cents = ?, total_received_cents = ?, total_withdrawn_cents = ?,
			active = ?, payout_destination = ?, updated_at = ?
		WHERE business_id = ?`
	result, err := r.q.ExecContext(ctx, query,
		w.BalanceCents, w.PendingBalanceCents, w.TotalReceivedCents, w.TotalWithdrawnCents,
		w.Active, w.PayoutDestination, formatTime(w.UpdatedAt), w.BusinessID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// AppendWalletEntry records one ledger movement.
func (r *repos) AppendWalletEntry(ctx context.Context, e persistence.WalletEntry) error {
	if e.ID == "" || e.AmountCents <= 0 {
		return persistence.ErrConstraintViolation
	}
	const query = `
		INSERT INTO wallet_entries (id, business_id, transaction_id, kind, amount_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		e.ID, e.BusinessID, nullableString(e.TransactionID), string(e.Kind), e.AmountCents, formatTime(e.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListWalletEntries returns the ledger of a business in insertion order.
func (r *repos) ListWalletEntries(ctx context.Context, businessID string) ([]persistence.WalletEntry, error) {
	const query = `
		SELECT id, business_id, transaction_id, kind, amount_cents, created_at
		FROM wallet_entries WHERE business_id = ? ORDER BY created_at, rowid`
	rows, err := r.q.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.WalletEntry
	for rows.Next() {
		var (
			e             persistence.WalletEntry
			transactionID sql.NullString
			kind          string
			createdAt     string
		)
		if err := rows.Scan(&e.ID, &e.BusinessID, &transactionID, &kind, &e.AmountCents, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		e.TransactionID = stringPtr(transactionID)
		e.Kind = wallet.EntryKind(kind)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}
