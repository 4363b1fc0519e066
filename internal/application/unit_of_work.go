package application

import (
	"context"
	"fmt"
	"time"

	"github.com/example/booking-pipeline/internal/appointment"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/settlement"
	"github.com/example/booking-pipeline/internal/wallet"
)

// unpaidFeeReason is recorded on appointments cancelled because their fee lapsed.
const unpaidFeeReason = "booking fee not paid"

// unit bundles the repositories of one atomic unit with its clock and event writer.
type unit struct {
	repos  persistence.Repositories
	events eventWriter
	newID  func() string
	now    time.Time
}

func newUnit(repos persistence.Repositories, newID func() string, now time.Time) unit {
	return unit{repos: repos, events: eventWriter{newID: newID, now: now}, newID: newID, now: now}
}

func (u unit) emit(ctx context.Context, name, aggregateID string, data any) error {
	return u.events.enqueue(ctx, u.repos, name, aggregateID, data)
}

// postLedger applies one wallet movement and records it. amount is the
// movement size; for credits net is what reaches the pending balance.
func (u unit) postLedger(ctx context.Context, businessID, transactionID string, kind wallet.EntryKind, amount, net int64) (persistence.Wallet, error) {
	w, err := u.repos.GetWallet(ctx, businessID)
	if err != nil {
		return persistence.Wallet{}, fmt.Errorf("load wallet: %w", err)
	}
	updated, err := w.Wallet.Apply(kind, amount, net)
	if err != nil {
		return persistence.Wallet{}, err
	}
	w.Wallet = updated
	w.UpdatedAt = u.now
	if err := u.repos.UpdateWallet(ctx, w); err != nil {
		return persistence.Wallet{}, fmt.Errorf("update wallet: %w", err)
	}

	moved := amount
	if kind == wallet.EntryCreditPending {
		moved = net
	}
	if moved <= 0 {
		return w, nil
	}
	entry := persistence.WalletEntry{
		ID:          u.newID(),
		BusinessID:  businessID,
		Kind:        kind,
		AmountCents: moved,
		CreatedAt:   u.now,
	}
	if transactionID != "" {
		entry.TransactionID = &transactionID
	}
	if err := u.repos.AppendWalletEntry(ctx, entry); err != nil {
		return persistence.Wallet{}, fmt.Errorf("append wallet entry: %w", err)
	}
	return w, nil
}

// stepOptions carries notification details used by individual steps.
type stepOptions struct {
	paidAt     *time.Time
	gatewayRef string
}

// applySteps walks txn through path, applying the side effects of every
// status it enters. The caller persists txn afterwards.
func (u unit) applySteps(ctx context.Context, txn *persistence.Transaction, path []settlement.Status, opts stepOptions) error {
	for _, next := range path {
		if !settlement.CanTransition(txn.Status, next) {
			return fmt.Errorf("%w: %s -> %s", settlement.ErrInvalidTransition, txn.Status, next)
		}
		txn.Status = next
		txn.UpdatedAt = u.now

		switch next {
		case settlement.StatusWaitingPayment:
			if opts.gatewayRef != "" && txn.GatewayRef == nil {
				ref := opts.gatewayRef
				txn.GatewayRef = &ref
			}
		case settlement.StatusPaid:
			if err := u.settlePaid(ctx, txn, opts.paidAt); err != nil {
				return err
			}
		case settlement.StatusExpired:
			if err := u.releaseUnpaid(ctx, *txn); err != nil {
				return err
			}
			if err := u.emit(ctx, EventTransactionExpired, txn.ID, transactionEventData(*txn)); err != nil {
				return err
			}
		case settlement.StatusCancelled:
			if err := u.releaseUnpaid(ctx, *txn); err != nil {
				return err
			}
			if err := u.emit(ctx, EventTransactionCancelled, txn.ID, transactionEventData(*txn)); err != nil {
				return err
			}
		case settlement.StatusRefunded:
			if err := u.reverseCredit(ctx, *txn); err != nil {
				return err
			}
			if err := u.emit(ctx, EventTransactionRefunded, txn.ID, transactionEventData(*txn)); err != nil {
				return err
			}
		}
	}
	return nil
}

// settlePaid freezes the commission, marks the appointment's fee paid and
// credits the wallet. Any failure aborts the whole unit.
func (u unit) settlePaid(ctx context.Context, txn *persistence.Transaction, paidAt *time.Time) error {
	txn.CommissionCents, txn.NetCents = settlement.Freeze(txn.AmountCents, txn.CommissionPercent)
	settledAt := u.now
	txn.SettledAt = &settledAt
	if paidAt != nil {
		at := *paidAt
		txn.PaidAt = &at
	} else {
		txn.PaidAt = &settledAt
	}

	appt, err := u.repos.GetAppointment(ctx, txn.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	appt.FeeStatus = appointment.FeePaid
	appt.UpdatedAt = u.now
	confirmed := false
	if appt.Status == appointment.StatusPending {
		if appt.Status, err = appointment.Transition(appt.Status, appointment.StatusConfirmed); err != nil {
			return err
		}
		confirmed = true
	}
	if err := u.repos.UpdateAppointment(ctx, appt); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}

	if _, err := u.postLedger(ctx, txn.BusinessID, txn.ID, wallet.EntryCreditPending, txn.AmountCents, txn.NetCents); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}

	if confirmed {
		if err := u.emit(ctx, EventAppointmentConfirmed, appt.ID, appointmentEventData(appt)); err != nil {
			return err
		}
	}
	if err := u.emit(ctx, EventTransactionPaid, txn.ID, transactionEventData(*txn)); err != nil {
		return err
	}
	return nil
}

// releaseUnpaid stops an unpaid fee from holding its appointment: the fee is
// exempted and the appointment is either confirmed or, when the business
// requires paid fees, cancelled.
func (u unit) releaseUnpaid(ctx context.Context, txn persistence.Transaction) error {
	appt, err := u.repos.GetAppointment(ctx, txn.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.FeeStatus != appointment.FeePending || appt.TransactionID == nil || *appt.TransactionID != txn.ID {
		return nil
	}
	appt.FeeStatus = appointment.FeeExempted
	appt.UpdatedAt = u.now

	event := ""
	if !appt.Status.Terminal() {
		business, err := u.repos.GetBusiness(ctx, appt.BusinessID)
		if err != nil {
			return fmt.Errorf("load business: %w", err)
		}
		switch {
		case business.CancelUnpaid:
			appt.Status = appointment.StatusCancelled
			reason := unpaidFeeReason
			appt.CancellationReason = &reason
			event = EventAppointmentCancelled
		case appt.Status == appointment.StatusPending:
			appt.Status = appointment.StatusConfirmed
			event = EventAppointmentConfirmed
		}
	}
	if err := u.repos.UpdateAppointment(ctx, appt); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if event == "" {
		return nil
	}
	data := appointmentEventData(appt)
	if event == EventAppointmentCancelled {
		data.Reason = unpaidFeeReason
	}
	return u.emit(ctx, event, appt.ID, data)
}

// reverseCredit takes a refunded transaction's net back out of the wallet:
// from pending when it was never released, from the balance otherwise.
func (u unit) reverseCredit(ctx context.Context, txn persistence.Transaction) error {
	if txn.NetCents <= 0 {
		return nil
	}
	kind := wallet.EntryCancelPending
	if txn.ReleasedAt != nil {
		kind = wallet.EntryDebitBalance
	}
	if _, err := u.postLedger(ctx, txn.BusinessID, txn.ID, kind, txn.NetCents, txn.NetCents); err != nil {
		return fmt.Errorf("reverse wallet credit: %w", err)
	}
	return nil
}
