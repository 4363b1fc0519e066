package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/settlement"
)

// TransactionService settles booking-fee transactions. Every change runs in
// one unit of work keyed by the transaction row, and every read applies the
// lazy expiry rule first.
type TransactionService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTransactionService constructs a transaction service with the provided dependencies.
func NewTransactionService(store persistence.Store, idGenerator func() string, now func() time.Time) *TransactionService {
	return NewTransactionServiceWithLogger(store, idGenerator, now, nil)
}

// NewTransactionServiceWithLogger constructs a transaction service with a specified logger.
func NewTransactionServiceWithLogger(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TransactionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TransactionService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *TransactionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TransactionService", operation, attrs...)
}

// transitionRequest describes one guarded move of a transaction.
type transitionRequest struct {
	load       func(ctx context.Context, repos persistence.Repositories) (persistence.Transaction, error)
	target     settlement.Status
	now        time.Time
	paidAmount *int64
	opts       stepOptions
}

// transition runs req in one unit: load, lazy expiry, replay detection, the
// legal path to the target and a status-guarded write. A failure after a
// lazy expiry still commits the expiry and is reported afterwards.
func (s *TransactionService) transition(ctx context.Context, req transitionRequest) (Outcome, error) {
	var (
		outcome Outcome
		late    error
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		outcome, late = Outcome{}, nil
		u := newUnit(repos, s.idGenerator, req.now)

		txn, err := req.load(ctx, repos)
		if err != nil {
			return err
		}
		expected := txn.Status

		expiredNow := false
		if settlement.Expired(txn.Status, txn.ExpiresAt, req.now) {
			if err := u.applySteps(ctx, &txn, []settlement.Status{settlement.StatusExpired}, req.opts); err != nil {
				return err
			}
			expiredNow = true
		}

		path, err := settlement.Path(txn.Status, req.target)
		if err != nil {
			if !expiredNow {
				return err
			}
			late, path = err, nil
		}
		if slices.Contains(path, settlement.StatusPaid) && req.paidAmount != nil && *req.paidAmount != txn.AmountCents {
			return fmt.Errorf("%w: paid %d, expected %d", ErrAmountMismatch, *req.paidAmount, txn.AmountCents)
		}

		outcome.Duplicate = len(path) == 0 && !(expiredNow && req.target == settlement.StatusExpired)
		if len(path) == 0 && !expiredNow {
			outcome.Transaction = txn
			return nil
		}
		if err := u.applySteps(ctx, &txn, path, req.opts); err != nil {
			return err
		}
		if err := repos.UpdateTransaction(ctx, txn, expected); err != nil {
			return err
		}
		outcome.Transaction = txn
		return nil
	})
	if err != nil {
		return Outcome{}, mapRepoError(err)
	}
	if late != nil {
		return outcome, mapRepoError(late)
	}
	return outcome, nil
}

// ApplyNotification reconciles a gateway notification. Replays are
// acknowledged with Outcome.Duplicate and change nothing.
func (s *TransactionService) ApplyNotification(ctx context.Context, n Notification, now time.Time) (outcome Outcome, err error) {
	if s == nil {
		err = fmt.Errorf("TransactionService is nil")
		return
	}
	now = orNow(now, s.now)
	ctx, span := startSpan(ctx, "TransactionService", "ApplyNotification")
	logger := s.loggerWith(ctx, "ApplyNotification",
		"gateway_payment_id", n.GatewayPaymentID,
		"gateway_status", n.Status,
	)
	defer func() {
		endSpan(span, err)
		switch {
		case errors.Is(err, ErrExpiredTransaction):
			logger.WarnContext(ctx, "payment arrived after expiry", "transaction_id", outcome.Transaction.ID, "error_kind", ErrorKind(err))
		case err != nil:
			logger.ErrorContext(ctx, "failed to apply notification", "error", err, "error_kind", ErrorKind(err))
		case outcome.Duplicate:
			logger.InfoContext(ctx, "notification replay acknowledged",
				"transaction_id", outcome.Transaction.ID,
				"status", outcome.Transaction.Status,
				"error_kind", ErrorKind(ErrDuplicateNotification),
			)
		default:
			logger.InfoContext(ctx, "notification applied", "transaction_id", outcome.Transaction.ID, "status", outcome.Transaction.Status)
		}
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(n.GatewayPaymentID) == "" {
		vErr.add("gatewayPaymentId", "gateway payment id is required")
	}
	if n.PaidAmountCents != nil && *n.PaidAmountCents <= 0 {
		vErr.add("paidAmountCents", "paid amount must be positive")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var target settlement.Status
	target, err = settlement.MapGatewayStatus(n.Status)
	if err != nil {
		return
	}

	outcome, err = s.transition(ctx, transitionRequest{
		load: func(ctx context.Context, repos persistence.Repositories) (persistence.Transaction, error) {
			return repos.GetTransactionByGatewayRef(ctx, n.GatewayPaymentID)
		},
		target:     target,
		now:        now,
		paidAmount: n.PaidAmountCents,
		opts:       stepOptions{paidAt: n.PaidAt},
	})
	return
}

// Get returns a transaction after applying lazy expiry.
func (s *TransactionService) Get(ctx context.Context, actor Actor, id string, now time.Time) (txn persistence.Transaction, err error) {
	if s == nil {
		err = fmt.Errorf("TransactionService is nil")
		return
	}
	now = orNow(now, s.now)
	logger := s.loggerWith(ctx, "Get", "actor_id", actor.ID, "transaction_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to load transaction", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	txn, err = s.store.GetTransaction(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if err = s.authorize(ctx, actor, txn); err != nil {
		return
	}
	if !settlement.Expired(txn.Status, txn.ExpiresAt, now) {
		return
	}

	var outcome Outcome
	outcome, err = s.transition(ctx, transitionRequest{
		load:   byID(id),
		target: settlement.StatusExpired,
		now:    now,
	})
	if err != nil {
		return
	}
	txn = outcome.Transaction
	logger.InfoContext(ctx, "transaction expired on read")
	return
}

// Cancel explicitly cancels an open transaction. Operators only.
func (s *TransactionService) Cancel(ctx context.Context, actor Actor, id string, now time.Time) (Outcome, error) {
	return s.operatorTransition(ctx, "Cancel", actor, id, settlement.StatusCancelled, now)
}

// Refund moves a paid transaction to processing_refund. Operators only.
func (s *TransactionService) Refund(ctx context.Context, actor Actor, id string, now time.Time) (Outcome, error) {
	return s.operatorTransition(ctx, "Refund", actor, id, settlement.StatusProcessingRefund, now)
}

// CompleteRefund finishes a refund and reverses the wallet credit. Operators only.
func (s *TransactionService) CompleteRefund(ctx context.Context, actor Actor, id string, now time.Time) (Outcome, error) {
	return s.operatorTransition(ctx, "CompleteRefund", actor, id, settlement.StatusRefunded, now)
}

func (s *TransactionService) operatorTransition(ctx context.Context, operation string, actor Actor, id string, target settlement.Status, now time.Time) (outcome Outcome, err error) {
	if s == nil {
		err = fmt.Errorf("TransactionService is nil")
		return
	}
	now = orNow(now, s.now)
	ctx, span := startSpan(ctx, "TransactionService", operation)
	logger := s.loggerWith(ctx, operation, "actor_id", actor.ID, "transaction_id", id)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "transaction transition failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "transaction transition applied", "status", outcome.Transaction.Status, "duplicate", outcome.Duplicate)
	}()

	outcome, err = s.transition(ctx, transitionRequest{
		load: func(ctx context.Context, repos persistence.Repositories) (persistence.Transaction, error) {
			txn, err := repos.GetTransaction(ctx, id)
			if err != nil {
				return persistence.Transaction{}, err
			}
			if !actor.operates(txn.BusinessID) {
				return persistence.Transaction{}, ErrUnauthorized
			}
			return txn, nil
		},
		target: target,
		now:    now,
	})
	return
}

// AttachCharge records the gateway reference of a freshly opened charge and
// moves the transaction to waiting_payment.
func (s *TransactionService) AttachCharge(ctx context.Context, id string, charge ChargeResult, now time.Time) (Outcome, error) {
	if strings.TrimSpace(charge.Reference) == "" {
		return Outcome{}, &ValidationError{FieldErrors: map[string]string{"reference": "gateway reference is required"}}
	}
	return s.transition(ctx, transitionRequest{
		load:   byID(id),
		target: settlement.StatusWaitingPayment,
		now:    orNow(now, s.now),
		opts:   stepOptions{gatewayRef: charge.Reference},
	})
}

// ExpireStale force-expires open transactions past their deadline through
// the same guard as the notification path.
func (s *TransactionService) ExpireStale(ctx context.Context, now time.Time, limit int) (expired int, err error) {
	if s == nil {
		err = fmt.Errorf("TransactionService is nil")
		return
	}
	now = orNow(now, s.now)
	if limit <= 0 {
		limit = 100
	}
	logger := s.loggerWith(ctx, "ExpireStale")

	candidates, err := s.store.ListExpirable(ctx, now, limit)
	if err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to list expirable transactions", "error", err, "error_kind", ErrorKind(err))
		return
	}

	var failures []error
	for _, candidate := range candidates {
		outcome, tErr := s.transition(ctx, transitionRequest{
			load:   byID(candidate.ID),
			target: settlement.StatusExpired,
			now:    now,
		})
		if tErr != nil {
			logger.WarnContext(ctx, "failed to expire transaction", "transaction_id", candidate.ID, "error", tErr, "error_kind", ErrorKind(tErr))
			failures = append(failures, tErr)
			continue
		}
		if !outcome.Duplicate {
			expired++
		}
	}
	if expired > 0 {
		logger.InfoContext(ctx, "stale transactions expired", "count", expired)
	}
	err = errors.Join(failures...)
	return
}

// authorize lets operators of the business and the booking customer read a transaction.
func (s *TransactionService) authorize(ctx context.Context, actor Actor, txn persistence.Transaction) error {
	if actor.operates(txn.BusinessID) {
		return nil
	}
	if actor.Role != RoleCustomer {
		return ErrUnauthorized
	}
	appt, err := s.store.GetAppointment(ctx, txn.AppointmentID)
	if err != nil {
		return mapRepoError(err)
	}
	if !actor.canActOn(appt) {
		return ErrUnauthorized
	}
	return nil
}

func byID(id string) func(ctx context.Context, repos persistence.Repositories) (persistence.Transaction, error) {
	return func(ctx context.Context, repos persistence.Repositories) (persistence.Transaction, error) {
		return repos.GetTransaction(ctx, id)
	}
}
