package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/settlement"
	"github.com/example/booking-pipeline/internal/wallet"
)

// WalletService exposes business wallets and releases matured funds.
type WalletService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewWalletService constructs a wallet service with the provided dependencies.
func NewWalletService(store persistence.Store, idGenerator func() string, now func() time.Time) *WalletService {
	return NewWalletServiceWithLogger(store, idGenerator, now, nil)
}

// NewWalletServiceWithLogger constructs a wallet service with a specified logger.
func NewWalletServiceWithLogger(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *WalletService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &WalletService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *WalletService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "WalletService", operation, attrs...)
}

// Get returns the wallet of a business. Operators of that business only.
func (s *WalletService) Get(ctx context.Context, actor Actor, businessID string) (w persistence.Wallet, err error) {
	if s == nil {
		err = fmt.Errorf("WalletService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Get", "actor_id", actor.ID, "business_id", businessID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to load wallet", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !actor.operates(businessID) {
		err = ErrUnauthorized
		return
	}
	w, err = s.store.GetWallet(ctx, businessID)
	err = mapRepoError(err)
	return
}

// Entries returns the ledger of a business in posting order. Operators only.
func (s *WalletService) Entries(ctx context.Context, actor Actor, businessID string) ([]persistence.WalletEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("WalletService is nil")
	}
	if !actor.operates(businessID) {
		return nil, ErrUnauthorized
	}
	entries, err := s.store.ListWalletEntries(ctx, businessID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return entries, nil
}

// Withdraw pays out from the available balance. Operators only.
func (s *WalletService) Withdraw(ctx context.Context, params WithdrawParams) (w persistence.Wallet, err error) {
	if s == nil {
		err = fmt.Errorf("WalletService is nil")
		return
	}
	now := orNow(params.Now, s.now)
	ctx, span := startSpan(ctx, "WalletService", "Withdraw")
	logger := s.loggerWith(ctx, "Withdraw",
		"actor_id", params.Actor.ID,
		"business_id", params.BusinessID,
		"amount_cents", params.AmountCents,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "withdrawal failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "withdrawal applied", "balance_cents", w.BalanceCents)
	}()

	if !params.Actor.operates(params.BusinessID) {
		err = ErrUnauthorized
		return
	}
	if params.AmountCents <= 0 {
		err = fmt.Errorf("%w: %d", ErrInvalidAmount, params.AmountCents)
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		u := newUnit(repos, s.idGenerator, now)
		updated, err := u.postLedger(ctx, params.BusinessID, "", wallet.EntryWithdraw, params.AmountCents, params.AmountCents)
		if err != nil {
			return err
		}
		w = updated
		return u.emit(ctx, EventWalletWithdrawn, params.BusinessID, walletEventData(w, "", params.AmountCents))
	})
	err = mapRepoError(err)
	return
}

// ReleaseMatured moves the net of every paid transaction settled at least
// hold ago from pending into the withdrawable balance. Each transaction is
// released in its own unit; failures are joined and the rest continue.
func (s *WalletService) ReleaseMatured(ctx context.Context, now time.Time, hold time.Duration, limit int) (released int, err error) {
	if s == nil {
		err = fmt.Errorf("WalletService is nil")
		return
	}
	now = orNow(now, s.now)
	if limit <= 0 {
		limit = 100
	}
	logger := s.loggerWith(ctx, "ReleaseMatured", "hold", hold.String())

	candidates, err := s.store.ListReleasable(ctx, now.Add(-hold), limit)
	if err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to list releasable transactions", "error", err, "error_kind", ErrorKind(err))
		return
	}

	var failures []error
	for _, candidate := range candidates {
		if rErr := s.release(ctx, candidate.ID, now); rErr != nil {
			logger.WarnContext(ctx, "failed to release pending funds", "transaction_id", candidate.ID, "error", rErr, "error_kind", ErrorKind(rErr))
			failures = append(failures, rErr)
			continue
		}
		released++
	}
	if released > 0 {
		logger.InfoContext(ctx, "pending funds released", "count", released)
	}
	err = errors.Join(failures...)
	return
}

func (s *WalletService) release(ctx context.Context, transactionID string, now time.Time) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		u := newUnit(repos, s.idGenerator, now)
		txn, err := repos.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status != settlement.StatusPaid || txn.ReleasedAt != nil {
			return nil
		}

		w, err := repos.GetWallet(ctx, txn.BusinessID)
		if err != nil {
			return err
		}
		if txn.NetCents > 0 {
			if w, err = u.postLedger(ctx, txn.BusinessID, txn.ID, wallet.EntryConfirmPending, txn.NetCents, txn.NetCents); err != nil {
				return err
			}
		}
		releasedAt := now
		txn.ReleasedAt = &releasedAt
		txn.UpdatedAt = now
		if err := repos.UpdateTransaction(ctx, txn, settlement.StatusPaid); err != nil {
			return err
		}
		return u.emit(ctx, EventWalletPendingReleased, txn.BusinessID, walletEventData(w, txn.ID, txn.NetCents))
	})
	return mapRepoError(err)
}
