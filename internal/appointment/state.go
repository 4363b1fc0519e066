// Package appointment holds the appointment lifecycle rules: which status
// changes are legal and when customers may still move or cancel a booking.
package appointment

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// FeeStatus tracks the booking fee attached to an appointment.
type FeeStatus string

const (
	FeePending  FeeStatus = "pending"
	FeePaid     FeeStatus = "paid"
	FeeExempted FeeStatus = "exempted"
)

var (
	// ErrInvalidTransition indicates the appointment is not in a source state for the change.
	ErrInvalidTransition = errors.New("appointment: invalid transition")
	// ErrPolicyDisallowed indicates the business or service forbids the change.
	ErrPolicyDisallowed = errors.New("appointment: disallowed by policy")
	// ErrAdvanceWindowViolated indicates the change comes too close to the appointment.
	ErrAdvanceWindowViolated = errors.New("appointment: advance window violated")
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusStarted, StatusCancelled},
	StatusStarted:   {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusStarted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Blocking reports whether an appointment in s occupies its interval.
func (s Status) Blocking() bool {
	return s != StatusCancelled
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

// Transition returns to when the move is legal, ErrInvalidTransition otherwise.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Initial returns the status pair a new appointment starts with.
func Initial(feeRequired bool) (Status, FeeStatus) {
	if feeRequired {
		return StatusPending, FeePending
	}
	return StatusConfirmed, FeeExempted
}

// Allowed combines a business flag with a service flag. Either false disallows.
func Allowed(businessFlag, serviceFlag bool) bool {
	return businessFlag && serviceFlag
}

// CheckAdvance requires now to be no later than scheduledAt minus hours.
func CheckAdvance(now, scheduledAt time.Time, hours int) error {
	deadline := scheduledAt.Add(-time.Duration(hours) * time.Hour)
	if now.After(deadline) {
		return fmt.Errorf("%w: deadline was %s", ErrAdvanceWindowViolated, deadline.Format(time.RFC3339))
	}
	return nil
}

// Policy carries the business and service flags that gate customer changes.
type Policy struct {
	BusinessAllowsReschedule bool
	ServiceAllowsReschedule  bool
	BusinessAllowsCancel     bool
	ServiceAllowsCancel      bool
	RescheduleAdvanceHours   int
	CancelAdvanceHours       int
}

// CheckReschedule validates moving an appointment that is in status.
func CheckReschedule(status Status, policy Policy, now, scheduledAt time.Time) error {
	if status != StatusPending && status != StatusConfirmed {
		return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, status)
	}
	if !Allowed(policy.BusinessAllowsReschedule, policy.ServiceAllowsReschedule) {
		return fmt.Errorf("%w: rescheduling is disabled", ErrPolicyDisallowed)
	}
	return CheckAdvance(now, scheduledAt, policy.RescheduleAdvanceHours)
}

// CheckCancel validates cancelling an appointment that is in status. A forced
// cancel skips the policy flags and the advance window but never revives a
// terminal appointment.
func CheckCancel(status Status, policy Policy, now, scheduledAt time.Time, force bool) error {
	if !CanTransition(status, StatusCancelled) {
		return fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidTransition, status)
	}
	if force {
		return nil
	}
	if !Allowed(policy.BusinessAllowsCancel, policy.ServiceAllowsCancel) {
		return fmt.Errorf("%w: cancellation is disabled", ErrPolicyDisallowed)
	}
	return CheckAdvance(now, scheduledAt, policy.CancelAdvanceHours)
}
