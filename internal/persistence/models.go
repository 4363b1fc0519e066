package persistence

import (
	"time"

	"github.com/example/booking-pipeline/internal/appointment"
	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/settlement"
	"github.com/example/booking-pipeline/internal/wallet"
	"github.com/shopspring/decimal"
)

// FeeKind selects how a business computes its booking fee.
type FeeKind string

const (
	FeeFixed   FeeKind = "fixed"
	FeePercent FeeKind = "percent"
)

// Business is a service provider that accepts bookings.
type Business struct {
	ID                     string
	Name                   string
	Currency               string
	TimeZone               string
	RequiresBookingFee     bool
	FeeKind                FeeKind
	FeeFixedCents          int64
	FeePercent             decimal.Decimal
	CommissionPercent      decimal.Decimal
	AllowReschedule        bool
	AllowCancel            bool
	RescheduleAdvanceHours int
	CancelAdvanceHours     int
	// CancelUnpaid cancels an appointment whose fee expires unpaid instead of
	// confirming it without a fee.
	CancelUnpaid bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Service is a bookable offering of a business.
type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	PriceCents      int64
	PromoPriceCents *int64
	PromoStartsAt   *time.Time
	PromoEndsAt     *time.Time
	AllowReschedule bool
	AllowCancel     bool
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PromoActive reports whether the promotional price applies at now.
func (s Service) PromoActive(now time.Time) bool {
	if s.PromoPriceCents == nil || *s.PromoPriceCents >= s.PriceCents || *s.PromoPriceCents < 0 {
		return false
	}
	if s.PromoStartsAt != nil && now.Before(*s.PromoStartsAt) {
		return false
	}
	if s.PromoEndsAt != nil && !now.Before(*s.PromoEndsAt) {
		return false
	}
	return true
}

// Calendar holds the booking rules of one business.
type Calendar struct {
	BusinessID string
	Rules      calendar.Rules
	UpdatedAt  time.Time
}

// Appointment is a customer's booking of a service.
type Appointment struct {
	ID                 string
	BusinessID         string
	ServiceID          string
	CustomerID         string
	ScheduledAt        time.Time
	DurationMinutes    int
	PriceCents         int64
	DiscountCents      int64
	Status             appointment.Status
	FeeAmountCents     int64
	FeeStatus          appointment.FeeStatus
	TransactionID      *string
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EndsAt returns the end of the appointment's half-open interval.
func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Transaction is a booking-fee payment.
type Transaction struct {
	ID                string
	BusinessID        string
	AppointmentID     string
	AmountCents       int64
	Currency          string
	CommissionPercent decimal.Decimal
	CommissionCents   int64
	NetCents          int64
	Status            settlement.Status
	GatewayRef        *string
	ExpiresAt         time.Time
	PaidAt            *time.Time
	SettledAt         *time.Time
	ReleasedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Wallet is the persisted wallet of a business.
type Wallet struct {
	BusinessID string
	wallet.Wallet
	PayoutDestination string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WalletEntry is one ledger movement.
type WalletEntry struct {
	ID            string
	BusinessID    string
	TransactionID *string
	Kind          wallet.EntryKind
	AmountCents   int64
	CreatedAt     time.Time
}

// OutboxEvent is a domain event waiting for delivery.
type OutboxEvent struct {
	ID          string
	Name        string
	AggregateID string
	Payload     []byte
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}
