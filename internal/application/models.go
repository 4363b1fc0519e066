package application

import (
	"time"

	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/persistence"
)

// Role distinguishes customers from establishment operators.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
)

// Actor is the authenticated caller, supplied by the upstream identity layer.
type Actor struct {
	ID         string
	Role       Role
	BusinessID string
}

// operates reports whether the actor is an operator of businessID.
func (a Actor) operates(businessID string) bool {
	return a.Role == RoleOperator && a.BusinessID != "" && a.BusinessID == businessID
}

// canActOn reports whether the actor may change appt.
func (a Actor) canActOn(appt persistence.Appointment) bool {
	switch a.Role {
	case RoleOperator:
		return a.operates(appt.BusinessID)
	case RoleCustomer:
		return a.ID != "" && a.ID == appt.CustomerID
	}
	return false
}

// SlotQuery asks for free slots of one service.
type SlotQuery struct {
	BusinessID string
	ServiceID  string
	From       calendar.Date
	To         calendar.Date
	Now        time.Time
}

// CreateAppointmentParams describes a booking request.
type CreateAppointmentParams struct {
	Actor       Actor
	BusinessID  string
	ServiceID   string
	CustomerID  string
	ScheduledAt time.Time
	Now         time.Time
}

// RescheduleAppointmentParams moves an appointment to a new slot.
type RescheduleAppointmentParams struct {
	Actor          Actor
	AppointmentID  string
	NewScheduledAt time.Time
	Now            time.Time
}

// CancelAppointmentParams cancels an appointment. Force is honoured only for
// operators of the appointment's business.
type CancelAppointmentParams struct {
	Actor         Actor
	AppointmentID string
	Reason        string
	Force         bool
	Now           time.Time
}

// AppointmentTransitionParams starts or completes an appointment.
type AppointmentTransitionParams struct {
	Actor         Actor
	AppointmentID string
	Now           time.Time
}

// Booking is an appointment together with its fee transaction, if any.
type Booking struct {
	Appointment persistence.Appointment
	Transaction *persistence.Transaction
}

// Notification is an inbound gateway payment notification.
type Notification struct {
	GatewayPaymentID string
	Status           string
	PaidAmountCents  *int64
	PaidAt           *time.Time
}

// Outcome reports how a notification or command changed a transaction.
// Duplicate marks an idempotent replay that changed nothing.
type Outcome struct {
	Transaction persistence.Transaction
	Duplicate   bool
}

// WithdrawParams requests a payout from a wallet.
type WithdrawParams struct {
	Actor       Actor
	BusinessID  string
	AmountCents int64
	Now         time.Time
}

// SweepReport summarises one settlement sweep.
type SweepReport struct {
	Expired  int
	Released int
	Failed   int
}

func orNow(t time.Time, now func() time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t
}
