// Package wallet implements the settlement ledger arithmetic for a business
// wallet. Every operation returns a new value and never yields a negative balance.
package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("wallet: amount must be positive")
	// ErrInsufficientBalance indicates the balance cannot cover the debit.
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	// ErrWalletInactive indicates withdrawals are disabled for the wallet.
	ErrWalletInactive = errors.New("wallet: inactive")
)

// EntryKind names a ledger movement.
type EntryKind string

const (
	EntryCreditPending  EntryKind = "credit_pending"
	EntryConfirmPending EntryKind = "confirm_pending"
	EntryCancelPending  EntryKind = "cancel_pending"
	EntryDebitBalance   EntryKind = "debit_balance"
	EntryWithdraw       EntryKind = "withdraw"
)

// Wallet holds the balances of one business.
type Wallet struct {
	BalanceCents        int64
	PendingBalanceCents int64
	TotalReceivedCents  int64
	TotalWithdrawnCents int64
	Active              bool
}

// CreditPending records a settled transaction: net joins the pending balance
// and the gross amount counts toward the received total.
func (w Wallet) CreditPending(amountCents, netCents int64) (Wallet, error) {
	if amountCents <= 0 || netCents < 0 || netCents > amountCents {
		return w, fmt.Errorf("%w: amount %d net %d", ErrInvalidAmount, amountCents, netCents)
	}
	w.PendingBalanceCents += netCents
	w.TotalReceivedCents += amountCents
	return w, nil
}

// ConfirmPending moves cleared funds from pending into the withdrawable balance.
func (w Wallet) ConfirmPending(amountCents int64) (Wallet, error) {
	if amountCents <= 0 {
		return w, ErrInvalidAmount
	}
	if w.PendingBalanceCents < amountCents {
		return w, fmt.Errorf("%w: pending %d below %d", ErrInsufficientBalance, w.PendingBalanceCents, amountCents)
	}
	w.PendingBalanceCents -= amountCents
	w.BalanceCents += amountCents
	return w, nil
}

// CancelPending removes funds from pending without touching the balance.
func (w Wallet) CancelPending(amountCents int64) (Wallet, error) {
	if amountCents <= 0 {
		return w, ErrInvalidAmount
	}
	if w.PendingBalanceCents < amountCents {
		return w, fmt.Errorf("%w: pending %d below %d", ErrInsufficientBalance, w.PendingBalanceCents, amountCents)
	}
	w.PendingBalanceCents -= amountCents
	return w, nil
}

// DebitBalance reverses funds that already cleared, such as a late refund.
func (w Wallet) DebitBalance(amountCents int64) (Wallet, error) {
	if amountCents <= 0 {
		return w, ErrInvalidAmount
	}
	if w.BalanceCents < amountCents {
		return w, fmt.Errorf("%w: balance %d below %d", ErrInsufficientBalance, w.BalanceCents, amountCents)
	}
	w.BalanceCents -= amountCents
	return w, nil
}

// Withdraw pays out from the balance of an active wallet.
func (w Wallet) Withdraw(amountCents int64) (Wallet, error) {
	if amountCents <= 0 {
		return w, ErrInvalidAmount
	}
	if !w.Active {
		return w, ErrWalletInactive
	}
	if w.BalanceCents < amountCents {
		return w, fmt.Errorf("%w: balance %d below %d", ErrInsufficientBalance, w.BalanceCents, amountCents)
	}
	w.BalanceCents -= amountCents
	w.TotalWithdrawnCents += amountCents
	return w, nil
}

// Apply dispatches a ledger movement by kind. CreditPending uses netCents as
// the pending amount and amountCents as the received amount.
func (w Wallet) Apply(kind EntryKind, amountCents, netCents int64) (Wallet, error) {
	switch kind {
	case EntryCreditPending:
		return w.CreditPending(amountCents, netCents)
	case EntryConfirmPending:
		return w.ConfirmPending(amountCents)
	case EntryCancelPending:
		return w.CancelPending(amountCents)
	case EntryDebitBalance:
		return w.DebitBalance(amountCents)
	case EntryWithdraw:
		return w.Withdraw(amountCents)
	}
	return w, fmt.Errorf("wallet: unknown entry kind %q", kind)
}

// Consistent reports whether no balance is negative.
func (w Wallet) Consistent() bool {
	return w.BalanceCents >= 0 && w.PendingBalanceCents >= 0 &&
		w.TotalReceivedCents >= 0 && w.TotalWithdrawnCents >= 0
}
