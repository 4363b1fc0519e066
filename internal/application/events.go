package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/booking-pipeline/internal/persistence"
)

// Domain event names. They double as message routing keys.
const (
	EventAppointmentCreated     = "AppointmentCreated"
	EventAppointmentConfirmed   = "AppointmentConfirmed"
	EventAppointmentRescheduled = "AppointmentRescheduled"
	EventAppointmentCancelled   = "AppointmentCancelled"
	EventAppointmentStarted     = "AppointmentStarted"
	EventAppointmentCompleted   = "AppointmentCompleted"
	EventTransactionOpened      = "TransactionOpened"
	EventTransactionPaid        = "TransactionPaid"
	EventTransactionExpired     = "TransactionExpired"
	EventTransactionCancelled   = "TransactionCancelled"
	EventTransactionRefunded    = "TransactionRefunded"
	EventWalletWithdrawn        = "WalletWithdrawn"
	EventWalletPendingReleased  = "WalletPendingReleased"
)

// EventEnvelope is the serialised form of every domain event.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Data        json.RawMessage `json:"data"`
}

// AppointmentEventData is carried by appointment events.
type AppointmentEventData struct {
	AppointmentID       string     `json:"appointmentId"`
	BusinessID          string     `json:"businessId"`
	ServiceID           string     `json:"serviceId"`
	CustomerID          string     `json:"customerId"`
	ScheduledAt         time.Time  `json:"scheduledAt"`
	DurationMinutes     int        `json:"durationMinutes"`
	Status              string     `json:"status"`
	FeeStatus           string     `json:"feeStatus"`
	PreviousScheduledAt *time.Time `json:"previousScheduledAt,omitempty"`
	Reason              string     `json:"reason,omitempty"`
	FeePaid             bool       `json:"feePaid,omitempty"`
	Forced              bool       `json:"forced,omitempty"`
	ActorID             string     `json:"actorId,omitempty"`
}

// TransactionEventData is carried by transaction events.
type TransactionEventData struct {
	TransactionID   string `json:"transactionId"`
	AppointmentID   string `json:"appointmentId"`
	BusinessID      string `json:"businessId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	CommissionCents int64  `json:"commissionCents"`
	NetCents        int64  `json:"netCents"`
	Status          string `json:"status"`
	GatewayRef      string `json:"gatewayRef,omitempty"`
}

// WalletEventData is carried by wallet events.
type WalletEventData struct {
	BusinessID          string `json:"businessId"`
	TransactionID       string `json:"transactionId,omitempty"`
	AmountCents         int64  `json:"amountCents"`
	BalanceCents        int64  `json:"balanceCents"`
	PendingBalanceCents int64  `json:"pendingBalanceCents"`
}

func appointmentEventData(a persistence.Appointment) AppointmentEventData {
	return AppointmentEventData{
		AppointmentID:   a.ID,
		BusinessID:      a.BusinessID,
		ServiceID:       a.ServiceID,
		CustomerID:      a.CustomerID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		FeeStatus:       string(a.FeeStatus),
	}
}

func transactionEventData(t persistence.Transaction) TransactionEventData {
	data := TransactionEventData{
		TransactionID:   t.ID,
		AppointmentID:   t.AppointmentID,
		BusinessID:      t.BusinessID,
		AmountCents:     t.AmountCents,
		Currency:        t.Currency,
		CommissionCents: t.CommissionCents,
		NetCents:        t.NetCents,
		Status:          string(t.Status),
	}
	if t.GatewayRef != nil {
		data.GatewayRef = *t.GatewayRef
	}
	return data
}

func walletEventData(w persistence.Wallet, transactionID string, amount int64) WalletEventData {
	return WalletEventData{
		BusinessID:          w.BusinessID,
		TransactionID:       transactionID,
		AmountCents:         amount,
		BalanceCents:        w.BalanceCents,
		PendingBalanceCents: w.PendingBalanceCents,
	}
}

// eventWriter enqueues events into the outbox of the current unit of work.
type eventWriter struct {
	newID func() string
	now   time.Time
}

func (w eventWriter) enqueue(ctx context.Context, outbox persistence.OutboxRepository, name, aggregateID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	envelope := EventEnvelope{
		ID:          w.newID(),
		Name:        name,
		AggregateID: aggregateID,
		OccurredAt:  w.now.UTC(),
		Data:        raw,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", name, err)
	}
	return outbox.EnqueueEvent(ctx, persistence.OutboxEvent{
		ID:          envelope.ID,
		Name:        name,
		AggregateID: aggregateID,
		Payload:     payload,
		CreatedAt:   w.now,
	})
}
