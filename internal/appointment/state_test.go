package appointment

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []Status{StatusPending, StatusConfirmed, StatusStarted, StatusCompleted, StatusCancelled}
	legal := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusStarted}:   true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusStarted, StatusCompleted}:   true,
		{StatusStarted, StatusCancelled}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != legal[[2]Status{from, to}] {
				t.Fatalf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}

	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		if !terminal.Terminal() {
			t.Fatalf("expected %s to be terminal", terminal)
		}
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		business, service, want bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
		{false, false, false},
	}
	for _, tc := range cases {
		if got := Allowed(tc.business, tc.service); got != tc.want {
			t.Fatalf("Allowed(%v, %v) = %v", tc.business, tc.service, got)
		}
	}
}

func TestCheckCancel(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2024, time.March, 4, 15, 0, 0, 0, time.UTC)
	policy := Policy{
		BusinessAllowsCancel: true,
		ServiceAllowsCancel:  true,
		CancelAdvanceHours:   24,
	}

	t.Run("customer cancel one hour before violates a day long window", func(t *testing.T) {
		t.Parallel()
		err := CheckCancel(StatusConfirmed, policy, scheduled.Add(-time.Hour), scheduled, false)
		if !errors.Is(err, ErrAdvanceWindowViolated) {
			t.Fatalf("expected ErrAdvanceWindowViolated, got %v", err)
		}
	})

	t.Run("forced cancel ignores the window", func(t *testing.T) {
		t.Parallel()
		if err := CheckCancel(StatusConfirmed, policy, scheduled.Add(-time.Hour), scheduled, true); err != nil {
			t.Fatalf("expected forced cancel to pass, got %v", err)
		}
	})

	t.Run("exact deadline is still allowed", func(t *testing.T) {
		t.Parallel()
		if err := CheckCancel(StatusPending, policy, scheduled.Add(-24*time.Hour), scheduled, false); err != nil {
			t.Fatalf("expected cancel at deadline to pass, got %v", err)
		}
	})

	t.Run("service flag disables cancellation", func(t *testing.T) {
		t.Parallel()
		p := policy
		p.ServiceAllowsCancel = false
		err := CheckCancel(StatusConfirmed, p, scheduled.Add(-48*time.Hour), scheduled, false)
		if !errors.Is(err, ErrPolicyDisallowed) {
			t.Fatalf("expected ErrPolicyDisallowed, got %v", err)
		}
	})

	t.Run("force never revives a terminal appointment", func(t *testing.T) {
		t.Parallel()
		err := CheckCancel(StatusCompleted, policy, scheduled.Add(-48*time.Hour), scheduled, true)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestCheckReschedule(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2024, time.March, 4, 15, 0, 0, 0, time.UTC)
	policy := Policy{
		BusinessAllowsReschedule: true,
		ServiceAllowsReschedule:  true,
		RescheduleAdvanceHours:   2,
	}

	if err := CheckReschedule(StatusConfirmed, policy, scheduled.Add(-3*time.Hour), scheduled); err != nil {
		t.Fatalf("expected reschedule to pass, got %v", err)
	}
	if err := CheckReschedule(StatusStarted, policy, scheduled.Add(-3*time.Hour), scheduled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for started appointment, got %v", err)
	}
	if err := CheckReschedule(StatusPending, policy, scheduled.Add(-time.Hour), scheduled); !errors.Is(err, ErrAdvanceWindowViolated) {
		t.Fatalf("expected ErrAdvanceWindowViolated, got %v", err)
	}
	policy.BusinessAllowsReschedule = false
	if err := CheckReschedule(StatusPending, policy, scheduled.Add(-3*time.Hour), scheduled); !errors.Is(err, ErrPolicyDisallowed) {
		t.Fatalf("expected ErrPolicyDisallowed, got %v", err)
	}
}
