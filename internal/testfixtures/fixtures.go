package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/shopspring/decimal"
)

var (
	businessCounter uint64
	serviceCounter  uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Business fixtures -----------------------------

// BusinessOption configures the generated business fixture.
type BusinessOption func(*persistence.Business)

// NewBusiness returns a deterministic fee-less business that allows
// rescheduling and cancelling without an advance window.
func NewBusiness(opts ...BusinessOption) persistence.Business {
	idx := atomic.AddUint64(&businessCounter, 1)
	b := persistence.Business{
		ID:                fmt.Sprintf("business-%03d", idx),
		Name:              fmt.Sprintf("Business %03d", idx),
		Currency:          "THB",
		TimeZone:          "UTC",
		FeeKind:           persistence.FeeFixed,
		FeePercent:        decimal.Zero,
		CommissionPercent: decimal.Zero,
		AllowReschedule:   true,
		AllowCancel:       true,
		CreatedAt:         referenceTime,
		UpdatedAt:         referenceTime,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithBusinessID overrides the generated business ID.
func WithBusinessID(id string) BusinessOption {
	return func(b *persistence.Business) {
		b.ID = id
	}
}

// WithTimeZone sets the business time zone.
func WithTimeZone(zone string) BusinessOption {
	return func(b *persistence.Business) {
		b.TimeZone = zone
	}
}

// WithFixedFee requires a fixed booking fee.
func WithFixedFee(cents int64) BusinessOption {
	return func(b *persistence.Business) {
		b.RequiresBookingFee = true
		b.FeeKind = persistence.FeeFixed
		b.FeeFixedCents = cents
	}
}

// WithPercentFee requires a booking fee computed from the service price.
func WithPercentFee(percent string) BusinessOption {
	return func(b *persistence.Business) {
		b.RequiresBookingFee = true
		b.FeeKind = persistence.FeePercent
		b.FeePercent = decimal.RequireFromString(percent)
	}
}

// WithCommission sets the platform commission percent.
func WithCommission(percent string) BusinessOption {
	return func(b *persistence.Business) {
		b.CommissionPercent = decimal.RequireFromString(percent)
	}
}

// WithAdvanceHours sets the reschedule and cancel advance windows.
func WithAdvanceHours(reschedule, cancel int) BusinessOption {
	return func(b *persistence.Business) {
		b.RescheduleAdvanceHours = reschedule
		b.CancelAdvanceHours = cancel
	}
}

// WithBusinessPolicy sets the business-level reschedule and cancel flags.
func WithBusinessPolicy(allowReschedule, allowCancel bool) BusinessOption {
	return func(b *persistence.Business) {
		b.AllowReschedule = allowReschedule
		b.AllowCancel = allowCancel
	}
}

// WithCancelUnpaid cancels appointments whose fee expires unpaid.
func WithCancelUnpaid() BusinessOption {
	return func(b *persistence.Business) {
		b.CancelUnpaid = true
	}
}

// ----------------------------- Service fixtures -----------------------------

// ServiceOption configures the generated service fixture.
type ServiceOption func(*persistence.Service)

// NewService returns a deterministic 30 minute service of businessID.
func NewService(businessID string, opts ...ServiceOption) persistence.Service {
	idx := atomic.AddUint64(&serviceCounter, 1)
	s := persistence.Service{
		ID:              fmt.Sprintf("service-%03d", idx),
		BusinessID:      businessID,
		Name:            fmt.Sprintf("Service %03d", idx),
		DurationMinutes: 30,
		PriceCents:      50000,
		AllowReschedule: true,
		AllowCancel:     true,
		Active:          true,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithDuration overrides the service duration.
func WithDuration(minutes int) ServiceOption {
	return func(s *persistence.Service) {
		s.DurationMinutes = minutes
	}
}

// WithPrice overrides the service price.
func WithPrice(cents int64) ServiceOption {
	return func(s *persistence.Service) {
		s.PriceCents = cents
	}
}

// WithPromotion sets a promotional price valid in [from, until).
func WithPromotion(cents int64, from, until time.Time) ServiceOption {
	return func(s *persistence.Service) {
		s.PromoPriceCents = &cents
		s.PromoStartsAt = &from
		s.PromoEndsAt = &until
	}
}

// WithServicePolicy sets the service-level reschedule and cancel flags.
func WithServicePolicy(allowReschedule, allowCancel bool) ServiceOption {
	return func(s *persistence.Service) {
		s.AllowReschedule = allowReschedule
		s.AllowCancel = allowCancel
	}
}

// ----------------------------- Calendar fixtures -----------------------------

// CalendarOption configures the generated calendar rules.
type CalendarOption func(*calendar.Rules)

// NewCalendar returns rules open 09:00-18:00 every day with 60 minute
// granularity and no advance requirement.
func NewCalendar(businessID string, opts ...CalendarOption) persistence.Calendar {
	rules := calendar.Rules{
		Location:               time.UTC,
		Weekly:                 calendar.Daily(9*60, 18*60),
		SlotGranularityMinutes: 60,
	}
	for _, opt := range opts {
		opt(&rules)
	}
	return persistence.Calendar{BusinessID: businessID, Rules: rules, UpdatedAt: referenceTime}
}

// WithMinAdvanceHours sets the minimum booking lead time.
func WithMinAdvanceHours(hours int) CalendarOption {
	return func(r *calendar.Rules) {
		r.MinAdvanceHours = hours
	}
}

// WithGranularity sets the slot granularity.
func WithGranularity(minutes int) CalendarOption {
	return func(r *calendar.Rules) {
		r.SlotGranularityMinutes = minutes
	}
}

// WithBlockedDate closes a whole day.
func WithBlockedDate(d calendar.Date, recurring bool) CalendarOption {
	return func(r *calendar.Rules) {
		r.BlockedDates = append(r.BlockedDates, calendar.BlockedDate{Date: d, Recurring: recurring})
	}
}

// WithBlockedRange closes part of a day.
func WithBlockedRange(d calendar.Date, startMinute, endMinute int) CalendarOption {
	return func(r *calendar.Rules) {
		r.BlockedRanges = append(r.BlockedRanges, calendar.BlockedRange{Date: d, StartMinute: startMinute, EndMinute: endMinute})
	}
}

// ----------------------------- Wallet fixtures -----------------------------

// NewWallet returns an active, empty wallet for businessID.
func NewWallet(businessID string) persistence.Wallet {
	w := persistence.Wallet{
		BusinessID:        businessID,
		PayoutDestination: "promptpay:0812345678",
		CreatedAt:         referenceTime,
		UpdatedAt:         referenceTime,
	}
	w.Active = true
	return w
}
