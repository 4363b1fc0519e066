package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/booking-pipeline/internal/appointment"
	"github.com/example/booking-pipeline/internal/settlement"
	"github.com/example/booking-pipeline/internal/testfixtures"
)

func feePipeline(t *testing.T, opts ...testfixtures.BusinessOption) (*pipeline, Booking) {
	t.Helper()
	opts = append([]testfixtures.BusinessOption{testfixtures.WithFixedFee(1000), testfixtures.WithCommission("10")}, opts...)
	p := newPipeline(t, testfixtures.NewBusiness(opts...), pipelineOptions{})
	return p, p.book(t, at(10, 0))
}

func TestTransactionService_ApplyNotification_SettlesPaidFee(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	before := p.wallet(t)

	outcome, err := p.notify(t, booking.Transaction.ID, "successful", 1000)
	if err != nil {
		t.Fatalf("apply notification: %v", err)
	}
	if outcome.Duplicate {
		t.Fatalf("first notification must not be a replay")
	}

	txn := p.transaction(t, booking.Transaction.ID)
	if txn.Status != settlement.StatusPaid || txn.CommissionCents != 100 || txn.NetCents != 900 {
		t.Fatalf("expected paid 100/900, got %s %d/%d", txn.Status, txn.CommissionCents, txn.NetCents)
	}
	if txn.SettledAt == nil || txn.PaidAt == nil {
		t.Fatalf("expected settlement timestamps")
	}

	after := p.wallet(t)
	if after.PendingBalanceCents-before.PendingBalanceCents != 900 {
		t.Fatalf("expected pending +900, got %d", after.PendingBalanceCents-before.PendingBalanceCents)
	}
	if after.TotalReceivedCents != 1000 || after.BalanceCents != 0 {
		t.Fatalf("unexpected wallet %+v", after.Wallet)
	}

	appt := p.appointment(t, booking.Appointment.ID)
	if appt.Status != appointment.StatusConfirmed || appt.FeeStatus != appointment.FeePaid {
		t.Fatalf("expected confirmed/paid, got %s/%s", appt.Status, appt.FeeStatus)
	}

	entries, err := p.wallets.Entries(context.Background(), p.operator, p.business.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].AmountCents != 900 || entries[0].TransactionID == nil || *entries[0].TransactionID != txn.ID {
		t.Fatalf("unexpected ledger %+v", entries)
	}

	names := p.eventNames(t)
	if countEvents(names, EventTransactionPaid) != 1 || countEvents(names, EventAppointmentConfirmed) != 1 {
		t.Fatalf("unexpected events %v", names)
	}
}

func TestTransactionService_ApplyNotification_ReplaysAreIdempotent(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err != nil {
		t.Fatalf("first notification: %v", err)
	}
	once := p.wallet(t)
	txnOnce := p.transaction(t, booking.Transaction.ID)

	for i := 0; i < 5; i++ {
		outcome, err := p.notify(t, booking.Transaction.ID, "approved", 1000)
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if !outcome.Duplicate {
			t.Fatalf("replay %d was not reported as duplicate", i)
		}
	}
	// An out-of-order waiting notification after settlement is also a replay.
	if outcome, err := p.notify(t, booking.Transaction.ID, "waiting", 0); err != nil || !outcome.Duplicate {
		t.Fatalf("late waiting notification: %v duplicate=%v", err, outcome.Duplicate)
	}

	if got := p.wallet(t); got.Wallet != once.Wallet {
		t.Fatalf("wallet changed on replay: %+v vs %+v", got.Wallet, once.Wallet)
	}
	if got := p.transaction(t, booking.Transaction.ID); got.Status != txnOnce.Status || !got.UpdatedAt.Equal(txnOnce.UpdatedAt) {
		t.Fatalf("transaction changed on replay")
	}
	if n := countEvents(p.eventNames(t), EventTransactionPaid); n != 1 {
		t.Fatalf("expected one TransactionPaid event, got %d", n)
	}
}

func TestTransactionService_ApplyNotification_RejectsAmountMismatch(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	_, err := p.notify(t, booking.Transaction.ID, "paid", 999)
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if txn := p.transaction(t, booking.Transaction.ID); txn.Status != settlement.StatusWaitingPayment {
		t.Fatalf("expected waiting_payment, got %s", txn.Status)
	}
	if w := p.wallet(t); w.PendingBalanceCents != 0 {
		t.Fatalf("wallet must be untouched, got %+v", w.Wallet)
	}
}

func TestTransactionService_ApplyNotification_UnknownInput(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	if _, err := p.notify(t, booking.Transaction.ID, "teleported", 0); !errors.Is(err, ErrUnknownGatewayStatus) {
		t.Fatalf("expected ErrUnknownGatewayStatus, got %v", err)
	}
	if _, err := p.notify(t, "missing-ref", "paid", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var vErr *ValidationError
	if _, err := p.notify(t, "", "paid", 0); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransactionService_ApplyNotification_RollsBackWithoutWallet(t *testing.T) {
	t.Parallel()

	business := testfixtures.NewBusiness(testfixtures.WithFixedFee(1000), testfixtures.WithCommission("10"))
	p := newPipeline(t, business, pipelineOptions{noWallet: true})
	booking := p.book(t, at(10, 0))

	if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err == nil {
		t.Fatalf("expected settlement to fail without a wallet")
	}
	txn := p.transaction(t, booking.Transaction.ID)
	if txn.Status != settlement.StatusWaitingPayment || txn.SettledAt != nil || txn.NetCents != 0 {
		t.Fatalf("transaction must not be left paid: %+v", txn)
	}
	appt := p.appointment(t, booking.Appointment.ID)
	if appt.Status != appointment.StatusPending || appt.FeeStatus != appointment.FeePending {
		t.Fatalf("appointment must be untouched, got %s/%s", appt.Status, appt.FeeStatus)
	}
	if countEvents(p.eventNames(t), EventTransactionPaid) != 0 {
		t.Fatalf("no paid event may be queued")
	}
}

func TestTransactionService_ApplyNotification_PaymentAfterExpiry(t *testing.T) {
	t.Parallel()

	t.Run("confirms without fee", func(t *testing.T) {
		t.Parallel()
		p, booking := feePipeline(t)
		p.clock.Advance(16 * time.Minute)

		outcome, err := p.notify(t, booking.Transaction.ID, "paid", 1000)
		if !errors.Is(err, ErrExpiredTransaction) {
			t.Fatalf("expected ErrExpiredTransaction, got %v", err)
		}
		if outcome.Transaction.Status != settlement.StatusExpired {
			t.Fatalf("expected expired outcome, got %s", outcome.Transaction.Status)
		}
		if txn := p.transaction(t, booking.Transaction.ID); txn.Status != settlement.StatusExpired {
			t.Fatalf("expiry must be committed, got %s", txn.Status)
		}
		appt := p.appointment(t, booking.Appointment.ID)
		if appt.Status != appointment.StatusConfirmed || appt.FeeStatus != appointment.FeeExempted {
			t.Fatalf("expected confirmed/exempted, got %s/%s", appt.Status, appt.FeeStatus)
		}
		if w := p.wallet(t); w.PendingBalanceCents != 0 || w.TotalReceivedCents != 0 {
			t.Fatalf("late payment must not credit the wallet: %+v", w.Wallet)
		}

		// A second late notification finds the transaction already expired.
		if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); !errors.Is(err, ErrExpiredTransaction) {
			t.Fatalf("expected ErrExpiredTransaction on replay, got %v", err)
		}
		if n := countEvents(p.eventNames(t), EventTransactionExpired); n != 1 {
			t.Fatalf("expected one TransactionExpired event, got %d", n)
		}
	})

	t.Run("cancels unpaid appointment", func(t *testing.T) {
		t.Parallel()
		p, booking := feePipeline(t, testfixtures.WithCancelUnpaid())
		p.clock.Advance(16 * time.Minute)

		if _, err := p.notify(t, booking.Transaction.ID, "expired", 0); err != nil {
			t.Fatalf("expire notification: %v", err)
		}
		appt := p.appointment(t, booking.Appointment.ID)
		if appt.Status != appointment.StatusCancelled || appt.CancellationReason == nil || *appt.CancellationReason != unpaidFeeReason {
			t.Fatalf("expected cancelled appointment, got %+v", appt)
		}
		p.book(t, at(10, 0))
	})
}

func TestTransactionService_Get_AppliesLazyExpiry(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	ctx := context.Background()

	txn, err := p.transactions.Get(ctx, p.customer, booking.Transaction.ID, time.Time{})
	if err != nil || txn.Status != settlement.StatusWaitingPayment {
		t.Fatalf("before expiry: %v %s", err, txn.Status)
	}
	if _, err := p.transactions.Get(ctx, Actor{ID: "stranger", Role: RoleCustomer}, booking.Transaction.ID, time.Time{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	p.clock.Advance(15*time.Minute + time.Second)
	txn, err = p.transactions.Get(ctx, p.operator, booking.Transaction.ID, time.Time{})
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if txn.Status != settlement.StatusExpired {
		t.Fatalf("expected expired, got %s", txn.Status)
	}
	if stored := p.transaction(t, booking.Transaction.ID); stored.Status != settlement.StatusExpired {
		t.Fatalf("expiry must be persisted, got %s", stored.Status)
	}
}

func TestTransactionService_ExpireStale(t *testing.T) {
	t.Parallel()

	p, first := feePipeline(t)
	second := p.book(t, at(11, 0))
	p.clock.Advance(10 * time.Minute)
	third := p.book(t, at(12, 0))

	expired, err := p.transactions.ExpireStale(context.Background(), opening.Add(20*time.Minute), 10)
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected two expired transactions, got %d", expired)
	}
	for _, b := range []Booking{first, second} {
		if txn := p.transaction(t, b.Transaction.ID); txn.Status != settlement.StatusExpired {
			t.Fatalf("expected %s expired, got %s", txn.ID, txn.Status)
		}
	}
	if txn := p.transaction(t, third.Transaction.ID); txn.Status != settlement.StatusWaitingPayment {
		t.Fatalf("expected fresh transaction untouched, got %s", txn.Status)
	}
}

func TestTransactionService_Cancel(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	ctx := context.Background()

	if _, err := p.transactions.Cancel(ctx, p.customer, booking.Transaction.ID, time.Time{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	outcome, err := p.transactions.Cancel(ctx, p.operator, booking.Transaction.ID, time.Time{})
	if err != nil || outcome.Transaction.Status != settlement.StatusCancelled {
		t.Fatalf("cancel: %v %s", err, outcome.Transaction.Status)
	}
	appt := p.appointment(t, booking.Appointment.ID)
	if appt.Status != appointment.StatusConfirmed || appt.FeeStatus != appointment.FeeExempted {
		t.Fatalf("expected confirmed/exempted, got %s/%s", appt.Status, appt.FeeStatus)
	}
	if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err != nil {
		t.Fatalf("paid after cancel must be acknowledged, got %v", err)
	}
	if w := p.wallet(t); w.PendingBalanceCents != 0 {
		t.Fatalf("cancelled transaction must not credit: %+v", w.Wallet)
	}
}

func TestTransactionService_Refund(t *testing.T) {
	t.Parallel()

	t.Run("before release", func(t *testing.T) {
		t.Parallel()
		p, booking := feePipeline(t)
		ctx := context.Background()
		if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err != nil {
			t.Fatalf("pay: %v", err)
		}
		if _, err := p.transactions.CompleteRefund(ctx, p.operator, booking.Transaction.ID, time.Time{}); err != nil {
			t.Fatalf("refund straight from paid: %v", err)
		}
		txn := p.transaction(t, booking.Transaction.ID)
		if txn.Status != settlement.StatusRefunded {
			t.Fatalf("expected refunded, got %s", txn.Status)
		}
		w := p.wallet(t)
		if w.PendingBalanceCents != 0 || w.BalanceCents != 0 {
			t.Fatalf("expected pending credit reversed, got %+v", w.Wallet)
		}
	})

	t.Run("after release", func(t *testing.T) {
		t.Parallel()
		p, booking := feePipeline(t)
		ctx := context.Background()
		if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err != nil {
			t.Fatalf("pay: %v", err)
		}
		if _, err := p.wallets.ReleaseMatured(ctx, p.clock.Now(), 0, 10); err != nil {
			t.Fatalf("release: %v", err)
		}
		outcome, err := p.transactions.Refund(ctx, p.operator, booking.Transaction.ID, time.Time{})
		if err != nil || outcome.Transaction.Status != settlement.StatusProcessingRefund {
			t.Fatalf("refund: %v %s", err, outcome.Transaction.Status)
		}
		if _, err := p.transactions.CompleteRefund(ctx, p.operator, booking.Transaction.ID, time.Time{}); err != nil {
			t.Fatalf("complete refund: %v", err)
		}
		if w := p.wallet(t); w.BalanceCents != 0 || w.PendingBalanceCents != 0 {
			t.Fatalf("expected balance debited, got %+v", w.Wallet)
		}
	})

	t.Run("after withdrawal", func(t *testing.T) {
		t.Parallel()
		p, booking := feePipeline(t)
		ctx := context.Background()
		if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err != nil {
			t.Fatalf("pay: %v", err)
		}
		if _, err := p.wallets.ReleaseMatured(ctx, p.clock.Now(), 0, 10); err != nil {
			t.Fatalf("release: %v", err)
		}
		if _, err := p.wallets.Withdraw(ctx, WithdrawParams{Actor: p.operator, BusinessID: p.business.ID, AmountCents: 900}); err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if _, err := p.transactions.Refund(ctx, p.operator, booking.Transaction.ID, time.Time{}); err != nil {
			t.Fatalf("refund: %v", err)
		}
		_, err := p.transactions.CompleteRefund(ctx, p.operator, booking.Transaction.ID, time.Time{})
		if !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		if txn := p.transaction(t, booking.Transaction.ID); txn.Status != settlement.StatusProcessingRefund {
			t.Fatalf("expected processing_refund, got %s", txn.Status)
		}
	})

	t.Run("unpaid", func(t *testing.T) {
		t.Parallel()
		p, booking := feePipeline(t)
		_, err := p.transactions.Refund(context.Background(), p.operator, booking.Transaction.ID, time.Time{})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}
