package availability

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/scheduler"
)

var (
	loc = time.FixedZone("ICT", 7*60*60)
	day = calendar.Date{Year: 2024, Month: time.March, Day: 4}
)

func dailyRules(open, close, granularity, advance int) calendar.Rules {
	return calendar.Rules{
		Location:               loc,
		Weekly:                 calendar.Daily(open, close),
		SlotGranularityMinutes: granularity,
		MinAdvanceHours:        advance,
	}
}

func TestEngine_FreeSlots(t *testing.T) {
	t.Parallel()

	engine := NewEngine(0)
	morning := time.Date(2024, time.March, 4, 8, 0, 0, 0, loc)

	t.Run("half hour service in an hourly grid yields eighteen slots", func(t *testing.T) {
		t.Parallel()
		slots, err := engine.FreeSlots(Query{
			Rules:    dailyRules(9*60, 18*60, 60, 1),
			Duration: 30 * time.Minute,
			From:     day,
			To:       day,
			Now:      morning,
		})
		if err != nil {
			t.Fatalf("FreeSlots returned error: %v", err)
		}
		if len(slots) != 18 {
			t.Fatalf("expected 18 slots, got %d", len(slots))
		}
		for i, slot := range slots {
			want := time.Date(2024, time.March, 4, 9, 0, 0, 0, loc).Add(time.Duration(i) * 30 * time.Minute)
			if !slot.Equal(want) {
				t.Fatalf("slot %d: expected %v, got %v", i, want, slot)
			}
		}
	})

	t.Run("minimum advance removes early slots", func(t *testing.T) {
		t.Parallel()
		slots, err := engine.FreeSlots(Query{
			Rules:    dailyRules(9*60, 18*60, 60, 2),
			Duration: 30 * time.Minute,
			From:     day,
			To:       day,
			Now:      morning,
		})
		if err != nil {
			t.Fatalf("FreeSlots returned error: %v", err)
		}
		if len(slots) != 16 || slots[0].Hour() != 10 {
			t.Fatalf("expected 16 slots from 10:00, got %d starting %v", len(slots), slots)
		}
	})

	t.Run("existing bookings block overlapping candidates", func(t *testing.T) {
		t.Parallel()
		taken := time.Date(2024, time.March, 4, 10, 0, 0, 0, loc)
		slots, err := engine.FreeSlots(Query{
			Rules:    dailyRules(9*60, 12*60, 60, 0),
			Duration: time.Hour,
			From:     day,
			To:       day,
			Existing: []scheduler.Booking{{ID: "a", Interval: scheduler.Interval{Start: taken, End: taken.Add(time.Hour)}}},
			Now:      morning,
		})
		if err != nil {
			t.Fatalf("FreeSlots returned error: %v", err)
		}
		if len(slots) != 2 || slots[0].Hour() != 9 || slots[1].Hour() != 11 {
			t.Fatalf("expected 09:00 and 11:00, got %v", slots)
		}
	})

	t.Run("excluded booking does not block itself", func(t *testing.T) {
		t.Parallel()
		taken := time.Date(2024, time.March, 4, 10, 0, 0, 0, loc)
		slots, err := engine.FreeSlots(Query{
			Rules:    dailyRules(9*60, 12*60, 60, 0),
			Duration: time.Hour,
			From:     day,
			To:       day,
			Existing: []scheduler.Booking{{ID: "a", Interval: scheduler.Interval{Start: taken, End: taken.Add(time.Hour)}}},
			Exclude:  "a",
			Now:      morning,
		})
		if err != nil {
			t.Fatalf("FreeSlots returned error: %v", err)
		}
		if len(slots) != 3 {
			t.Fatalf("expected 3 slots, got %v", slots)
		}
	})

	t.Run("service longer than any window yields nothing", func(t *testing.T) {
		t.Parallel()
		rules := dailyRules(9*60, 11*60, 30, 0)
		rules.Weekly[day.Weekday()] = append(rules.Weekly[day.Weekday()], calendar.Window{OpenMinute: 13 * 60, CloseMinute: 15 * 60})
		slots, err := engine.FreeSlots(Query{Rules: rules, Duration: 3 * time.Hour, From: day, To: day, Now: morning})
		if err != nil {
			t.Fatalf("FreeSlots returned error: %v", err)
		}
		if len(slots) != 0 {
			t.Fatalf("expected no slots, got %v", slots)
		}
	})

	t.Run("blocked range covering the window yields nothing", func(t *testing.T) {
		t.Parallel()
		rules := dailyRules(9*60, 18*60, 30, 0)
		rules.BlockedRanges = []calendar.BlockedRange{{Date: day, StartMinute: 8 * 60, EndMinute: 19 * 60}}
		slots, err := engine.FreeSlots(Query{Rules: rules, Duration: 30 * time.Minute, From: day, To: day, Now: morning})
		if err != nil {
			t.Fatalf("FreeSlots returned error: %v", err)
		}
		if len(slots) != 0 {
			t.Fatalf("expected no slots, got %v", slots)
		}
	})

	t.Run("multi day ranges stay chronological", func(t *testing.T) {
		t.Parallel()
		slots, err := engine.FreeSlots(Query{
			Rules:    dailyRules(9*60, 12*60, 60, 0),
			Duration: time.Hour,
			From:     day,
			To:       day.AddDays(6),
			Now:      morning,
		})
		if err != nil {
			t.Fatalf("FreeSlots returned error: %v", err)
		}
		if len(slots) != 21 {
			t.Fatalf("expected 21 slots, got %d", len(slots))
		}
		for i := 1; i < len(slots); i++ {
			if !slots[i-1].Before(slots[i]) {
				t.Fatalf("slots out of order at %d: %v then %v", i, slots[i-1], slots[i])
			}
		}
	})

	t.Run("inverted range is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := engine.FreeSlots(Query{Rules: dailyRules(540, 1080, 60, 0), Duration: time.Hour, From: day, To: day.AddDays(-1), Now: morning})
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange, got %v", err)
		}
	})

	t.Run("oversized range is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewEngine(7).FreeSlots(Query{Rules: dailyRules(540, 1080, 60, 0), Duration: time.Hour, From: day, To: day.AddDays(7), Now: morning})
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange, got %v", err)
		}
	})
}

func TestEngine_IsFree(t *testing.T) {
	t.Parallel()

	engine := NewEngine(0)
	q := Query{
		Rules:    dailyRules(9*60, 12*60, 60, 0),
		Duration: time.Hour,
		Now:      time.Date(2024, time.March, 4, 8, 0, 0, 0, loc),
	}

	if !engine.IsFree(q, time.Date(2024, time.March, 4, 9, 0, 0, 0, loc)) {
		t.Fatal("expected 09:00 to be free")
	}
	if engine.IsFree(q, time.Date(2024, time.March, 4, 9, 15, 0, 0, loc)) {
		t.Fatal("expected off-grid 09:15 to be rejected")
	}
	if engine.IsFree(q, time.Date(2024, time.March, 4, 11, 30, 0, 0, loc)) {
		t.Fatal("expected 11:30 to be rejected because it overruns closing")
	}
}

// TestEngine_AgreesWithMinuteScan compares the engine against a brute force
// scan of every minute of the day over randomized rules and bookings.
func TestEngine_AgreesWithMinuteScan(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(42, 7))
	engine := NewEngine(0)
	granularities := []int{10, 15, 20, 30, 45, 60}

	for iteration := 0; iteration < 200; iteration++ {
		open := rng.IntN(12) * 60
		close := open + 60 + rng.IntN(10)*30
		rules := dailyRules(open, close, granularities[rng.IntN(len(granularities))], rng.IntN(3))
		if rng.IntN(3) == 0 {
			start := open + rng.IntN(close-open)
			rules.BlockedRanges = []calendar.BlockedRange{{Date: day, StartMinute: start, EndMinute: min(start+15+rng.IntN(120), calendar.MinutesPerDay)}}
		}
		duration := time.Duration(15+rng.IntN(8)*15) * time.Minute
		now := day.At(loc, rng.IntN(16*60))

		var existing []scheduler.Booking
		for i := 0; i < rng.IntN(4); i++ {
			start := day.At(loc, open+rng.IntN(close-open))
			existing = append(existing, scheduler.Booking{
				ID:       string(rune('a' + i)),
				Interval: scheduler.Interval{Start: start, End: start.Add(time.Duration(15+rng.IntN(6)*15) * time.Minute)},
			})
		}

		q := Query{Rules: rules, Duration: duration, From: day, To: day, Existing: existing, Now: now}
		slots, err := engine.FreeSlots(q)
		if err != nil {
			t.Fatalf("iteration %d: FreeSlots returned error: %v", iteration, err)
		}
		returned := make(map[int64]bool, len(slots))
		for _, s := range slots {
			returned[s.Unix()] = true
		}

		windows := rules.DayWindows(day)
		step := Step(rules, duration)
		earliest := now.Add(rules.MinAdvance())

		for minute := 0; minute < calendar.MinutesPerDay; minute++ {
			candidate := day.At(loc, minute)
			span := scheduler.Interval{Start: candidate, End: candidate.Add(duration)}

			bookable := false
			for _, w := range windows {
				if w.Contains(span) && candidate.Sub(w.Start)%step == 0 {
					bookable = true
					break
				}
			}
			bookable = bookable && !candidate.Before(earliest) &&
				!scheduler.HasConflict(existing, scheduler.Booking{Interval: span})

			if bookable != returned[candidate.Unix()] {
				t.Fatalf("iteration %d minute %d: scan says %v, engine says %v", iteration, minute, bookable, returned[candidate.Unix()])
			}
			if minute%5 == 0 && bookable != engine.IsFree(q, candidate) {
				t.Fatalf("iteration %d minute %d: IsFree disagrees with FreeSlots", iteration, minute)
			}
		}
	}
}
