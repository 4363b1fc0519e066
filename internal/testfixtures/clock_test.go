package testfixtures

import (
	"testing"
	"time"
)

func TestClock_DefaultsToReferenceTime(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClock_AdvancePastFeeExpiry(t *testing.T) {
	t.Parallel()

	opening := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	clock := NewClock(opening)
	expiresAt := opening.Add(15 * time.Minute)

	if got := clock.Advance(15 * time.Minute); got.After(expiresAt) {
		t.Fatalf("expected clock at the deadline, got %v", got)
	}
	if got := clock.Advance(time.Second); !got.After(expiresAt) {
		t.Fatalf("expected clock past the deadline, got %v", got)
	}

	clock.Set(opening)
	if got := clock.AdvanceDays(3); !got.Equal(time.Date(2024, time.March, 7, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time after three days: %v", got)
	}
}

func TestClock_NowFuncFollowsClock(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	nowFn := clock.NowFunc()

	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Now()) {
		t.Fatalf("expected updated time %v, got %v", clock.Now(), got)
	}

	var nilClock *Clock
	if nilClock.NowFunc()().IsZero() {
		t.Fatalf("expected wall clock from nil clock")
	}
}
