package scheduler

import (
	"testing"
	"time"
)

var base = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func span(start, end int) Interval {
	return Interval{Start: at(start), End: at(end)}
}

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	existing := []Booking{
		{ID: "a", Interval: span(0, 30)},
		{ID: "b", Interval: span(60, 90)},
	}

	t.Run("overlap produces conflict", func(t *testing.T) {
		t.Parallel()
		got := DetectConflicts(existing, Booking{ID: "c", Interval: span(15, 45)})
		if len(got) != 1 || got[0].WithID != "a" {
			t.Fatalf("expected conflict with a, got %+v", got)
		}
	})

	t.Run("touching intervals do not conflict", func(t *testing.T) {
		t.Parallel()
		if got := DetectConflicts(existing, Booking{ID: "c", Interval: span(30, 60)}); len(got) != 0 {
			t.Fatalf("expected no conflicts, got %+v", got)
		}
	})

	t.Run("booking never conflicts with itself", func(t *testing.T) {
		t.Parallel()
		if HasConflict(existing, Booking{ID: "b", Interval: span(70, 100)}) {
			t.Fatal("expected move of b to ignore its own interval")
		}
	})
}

func TestOverlappingPairs(t *testing.T) {
	t.Parallel()

	pairs := OverlappingPairs([]Booking{
		{ID: "a", Interval: span(0, 60)},
		{ID: "b", Interval: span(30, 90)},
		{ID: "c", Interval: span(90, 120)},
	})
	if len(pairs) != 1 || pairs[0] != [2]string{"a", "b"} {
		t.Fatalf("unexpected pairs %v", pairs)
	}
}

func TestSubtractAndMerge(t *testing.T) {
	t.Parallel()

	t.Run("cut splits interval", func(t *testing.T) {
		t.Parallel()
		got := Subtract([]Interval{span(0, 540)}, []Interval{span(180, 240)})
		want := []Interval{span(0, 180), span(240, 540)}
		if len(got) != len(want) {
			t.Fatalf("expected %d intervals, got %+v", len(want), got)
		}
		for i := range want {
			if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
				t.Fatalf("interval %d: expected %+v, got %+v", i, want[i], got[i])
			}
		}
	})

	t.Run("full cover leaves nothing", func(t *testing.T) {
		t.Parallel()
		if got := Subtract([]Interval{span(0, 60)}, []Interval{span(-10, 70)}); len(got) != 0 {
			t.Fatalf("expected empty result, got %+v", got)
		}
	})

	t.Run("merge joins touching windows", func(t *testing.T) {
		t.Parallel()
		got := Merge([]Interval{span(120, 180), span(0, 60), span(60, 90)})
		if len(got) != 2 || !got[0].End.Equal(at(90)) || !got[1].Start.Equal(at(120)) {
			t.Fatalf("unexpected merge result %+v", got)
		}
	})
}
