package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/booking-pipeline/internal/wallet"
)

func TestWalletService_ReleaseMatured(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	ctx := context.Background()
	if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err != nil {
		t.Fatalf("pay: %v", err)
	}
	hold := 72 * time.Hour
	settledAt := p.clock.Now()

	released, err := p.wallets.ReleaseMatured(ctx, settledAt.Add(hold-time.Second), hold, 10)
	if err != nil || released != 0 {
		t.Fatalf("expected nothing released before the hold elapses, got %d %v", released, err)
	}

	released, err = p.wallets.ReleaseMatured(ctx, settledAt.Add(hold), hold, 10)
	if err != nil || released != 1 {
		t.Fatalf("expected one release, got %d %v", released, err)
	}
	w := p.wallet(t)
	if w.BalanceCents != 900 || w.PendingBalanceCents != 0 {
		t.Fatalf("expected 900 available, got %+v", w.Wallet)
	}
	if txn := p.transaction(t, booking.Transaction.ID); txn.ReleasedAt == nil {
		t.Fatalf("expected released_at to be recorded")
	}

	released, err = p.wallets.ReleaseMatured(ctx, settledAt.Add(2*hold), hold, 10)
	if err != nil || released != 0 {
		t.Fatalf("expected release to happen once, got %d %v", released, err)
	}
	if n := countEvents(p.eventNames(t), EventWalletPendingReleased); n != 1 {
		t.Fatalf("expected one WalletPendingReleased event, got %d", n)
	}
}

func TestWalletService_Withdraw(t *testing.T) {
	t.Parallel()

	p, booking := feePipeline(t)
	ctx := context.Background()
	if _, err := p.notify(t, booking.Transaction.ID, "paid", 1000); err != nil {
		t.Fatalf("pay: %v", err)
	}

	cases := []struct {
		name    string
		actor   Actor
		amount  int64
		wantErr error
	}{
		{name: "pending funds are not withdrawable", actor: p.operator, amount: 100, wantErr: ErrInsufficientBalance},
		{name: "customer", actor: p.customer, amount: 100, wantErr: ErrUnauthorized},
		{name: "zero", actor: p.operator, amount: 0, wantErr: ErrInvalidAmount},
	}
	for _, tc := range cases {
		_, err := p.wallets.Withdraw(ctx, WithdrawParams{Actor: tc.actor, BusinessID: p.business.ID, AmountCents: tc.amount})
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}

	if _, err := p.wallets.ReleaseMatured(ctx, p.clock.Now(), 0, 10); err != nil {
		t.Fatalf("release: %v", err)
	}
	w, err := p.wallets.Withdraw(ctx, WithdrawParams{Actor: p.operator, BusinessID: p.business.ID, AmountCents: 600})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if w.BalanceCents != 300 || w.TotalWithdrawnCents != 600 {
		t.Fatalf("unexpected wallet after withdrawal: %+v", w.Wallet)
	}
	if _, err := p.wallets.Withdraw(ctx, WithdrawParams{Actor: p.operator, BusinessID: p.business.ID, AmountCents: 301}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	entries, err := p.wallets.Entries(ctx, p.operator, p.business.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	kinds := make([]wallet.EntryKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	want := []wallet.EntryKind{wallet.EntryCreditPending, wallet.EntryConfirmPending, wallet.EntryWithdraw}
	if len(kinds) != len(want) {
		t.Fatalf("expected ledger %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected ledger %v, got %v", want, kinds)
		}
	}
}

func TestWalletService_Withdraw_InactiveWallet(t *testing.T) {
	t.Parallel()

	p, _ := feePipeline(t)
	ctx := context.Background()
	w := p.wallet(t)
	w.Active = false
	w.BalanceCents = 500
	if err := p.store.UpdateWallet(ctx, w); err != nil {
		t.Fatalf("deactivate wallet: %v", err)
	}
	if _, err := p.wallets.Withdraw(ctx, WithdrawParams{Actor: p.operator, BusinessID: p.business.ID, AmountCents: 100}); !errors.Is(err, ErrWalletInactive) {
		t.Fatalf("expected ErrWalletInactive, got %v", err)
	}
}

func TestWalletService_Get(t *testing.T) {
	t.Parallel()

	p, _ := feePipeline(t)
	if _, err := p.wallets.Get(context.Background(), p.customer, p.business.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	w, err := p.wallets.Get(context.Background(), p.operator, p.business.ID)
	if err != nil || !w.Active {
		t.Fatalf("get: %v %+v", err, w)
	}
}

func TestSettlementSweeper_Sweep(t *testing.T) {
	t.Parallel()

	p, paid := feePipeline(t)
	stale := p.book(t, at(11, 0))
	if _, err := p.notify(t, paid.Transaction.ID, "paid", 1000); err != nil {
		t.Fatalf("pay: %v", err)
	}

	sweeper := NewSettlementSweeper(p.transactions, p.wallets, time.Hour, 10, p.clock.NowFunc(), nil)
	report := sweeper.Sweep(context.Background(), opening.Add(2*time.Hour))
	if report.Expired != 1 || report.Released != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if txn := p.transaction(t, stale.Transaction.ID); txn.Status != "expired" {
		t.Fatalf("expected stale transaction expired, got %s", txn.Status)
	}
	if w := p.wallet(t); w.BalanceCents != 900 {
		t.Fatalf("expected released balance, got %+v", w.Wallet)
	}
}

func TestSettlementSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	p, _ := feePipeline(t)
	sweeper := NewSettlementSweeper(p.transactions, p.wallets, time.Hour, 10, p.clock.NowFunc(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
