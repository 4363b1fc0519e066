// Package settlement models the booking-fee transaction lifecycle: its
// states, the lazy expiry rule, gateway status mapping and commission freezing.
package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a fee transaction.
type Status string

const (
	StatusPending          Status = "pending"
	StatusWaitingPayment   Status = "waiting_payment"
	StatusPaid             Status = "paid"
	StatusExpired          Status = "expired"
	StatusCancelled        Status = "cancelled"
	StatusRefunded         Status = "refunded"
	StatusProcessingRefund Status = "processing_refund"
)

var (
	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("settlement: invalid transition")
	// ErrExpiredTransaction indicates a payment arrived for a transaction that already expired.
	ErrExpiredTransaction = errors.New("settlement: transaction expired")
	// ErrUnknownGatewayStatus indicates a gateway status outside the known vocabulary.
	ErrUnknownGatewayStatus = errors.New("settlement: unknown gateway status")
)

var transitions = map[Status][]Status{
	StatusPending:          {StatusWaitingPayment, StatusExpired, StatusCancelled},
	StatusWaitingPayment:   {StatusPaid, StatusExpired, StatusCancelled},
	StatusPaid:             {StatusProcessingRefund},
	StatusProcessingRefund: {StatusRefunded},
}

// Terminal reports whether settlement is finished for s.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusExpired, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Open reports whether s still awaits payment.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusWaitingPayment
}

// CanTransition reports whether from may move directly to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Expired reports whether an open transaction has passed its deadline at now.
func Expired(status Status, expiresAt, now time.Time) bool {
	return status.Open() && !expiresAt.IsZero() && now.After(expiresAt)
}

// Path returns the ordered statuses a transaction passes through to honour a
// target reported by the gateway. An empty path means the notification
// changes nothing and must be acknowledged as a replay.
func Path(current, target Status) ([]Status, error) {
	if current == target {
		return nil, nil
	}
	switch current {
	case StatusPending:
		switch target {
		case StatusWaitingPayment, StatusExpired, StatusCancelled:
			return []Status{target}, nil
		case StatusPaid:
			return []Status{StatusWaitingPayment, StatusPaid}, nil
		}
	case StatusWaitingPayment:
		switch target {
		case StatusPending:
			return nil, nil
		case StatusPaid, StatusExpired, StatusCancelled:
			return []Status{target}, nil
		}
	case StatusPaid:
		switch target {
		case StatusProcessingRefund:
			return []Status{StatusProcessingRefund}, nil
		case StatusRefunded:
			return []Status{StatusProcessingRefund, StatusRefunded}, nil
		}
		return nil, nil
	case StatusProcessingRefund:
		if target == StatusRefunded {
			return []Status{StatusRefunded}, nil
		}
		return nil, nil
	case StatusExpired:
		if target == StatusPaid {
			return nil, ErrExpiredTransaction
		}
		return nil, nil
	case StatusCancelled, StatusRefunded:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

var gatewayVocabulary = map[string]Status{
	"pending":           StatusPending,
	"created":           StatusPending,
	"waiting":           StatusWaitingPayment,
	"waiting_payment":   StatusWaitingPayment,
	"in_process":        StatusWaitingPayment,
	"awaiting_payment":  StatusWaitingPayment,
	"approved":          StatusPaid,
	"paid":              StatusPaid,
	"successful":        StatusPaid,
	"expired":           StatusExpired,
	"cancelled":         StatusCancelled,
	"canceled":          StatusCancelled,
	"failed":            StatusCancelled,
	"rejected":          StatusCancelled,
	"reversed":          StatusCancelled,
	"processing_refund": StatusProcessingRefund,
	"refunding":         StatusProcessingRefund,
	"refunded":          StatusRefunded,
	"charged_back":      StatusRefunded,
}

// MapGatewayStatus translates a gateway status string into a Status.
func MapGatewayStatus(value string) (Status, error) {
	status, ok := gatewayVocabulary[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGatewayStatus, value)
	}
	return status, nil
}

var hundred = decimal.NewFromInt(100)

// Freeze splits amountCents into the platform commission and the business's
// net share using percent, rounded half away from zero to the cent.
func Freeze(amountCents int64, percent decimal.Decimal) (commissionCents, netCents int64) {
	commission := decimal.NewFromInt(amountCents).Mul(percent).Div(hundred).Round(0).IntPart()
	if commission < 0 {
		commission = 0
	}
	if commission > amountCents {
		commission = amountCents
	}
	return commission, amountCents - commission
}

// PercentOf returns percent of baseCents, rounded half away from zero to the cent.
func PercentOf(baseCents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(baseCents).Mul(percent).Div(hundred).Round(0).IntPart()
}
