package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestRules_DayWindows(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ICT", 7*60*60)
	monday := Date{Year: 2024, Month: time.March, Day: 4}

	t.Run("intersects weekly window with daily booking window", func(t *testing.T) {
		t.Parallel()
		earliest, latest := 10*60, 17*60
		rules := Rules{
			Location:               loc,
			Weekly:                 Daily(9*60, 18*60),
			SlotGranularityMinutes: 30,
			EarliestMinute:         &earliest,
			LatestMinute:           &latest,
		}
		got := rules.DayWindows(monday)
		if len(got) != 1 {
			t.Fatalf("expected one window, got %+v", got)
		}
		if want := time.Date(2024, time.March, 4, 10, 0, 0, 0, loc); !got[0].Start.Equal(want) {
			t.Fatalf("expected start %v, got %v", want, got[0].Start)
		}
		if want := time.Date(2024, time.March, 4, 17, 0, 0, 0, loc); !got[0].End.Equal(want) {
			t.Fatalf("expected end %v, got %v", want, got[0].End)
		}
	})

	t.Run("recurring blocked date closes matching day in any year", func(t *testing.T) {
		t.Parallel()
		rules := Rules{
			Location:               loc,
			Weekly:                 Daily(9*60, 18*60),
			SlotGranularityMinutes: 60,
			BlockedDates:           []BlockedDate{{Date: Date{Year: 1999, Month: time.March, Day: 4}, Recurring: true}},
		}
		if got := rules.DayWindows(monday); len(got) != 0 {
			t.Fatalf("expected closed day, got %+v", got)
		}
		if got := rules.DayWindows(monday.AddDays(1)); len(got) != 1 {
			t.Fatalf("expected next day open, got %+v", got)
		}
	})

	t.Run("one-off blocked date only closes its own year", func(t *testing.T) {
		t.Parallel()
		rules := Rules{
			Location:               loc,
			Weekly:                 Daily(9*60, 18*60),
			SlotGranularityMinutes: 60,
			BlockedDates:           []BlockedDate{{Date: Date{Year: 2023, Month: time.March, Day: 4}}},
		}
		if got := rules.DayWindows(monday); len(got) != 1 {
			t.Fatalf("expected open day, got %+v", got)
		}
	})

	t.Run("blocked range splits the day", func(t *testing.T) {
		t.Parallel()
		rules := Rules{
			Location:               loc,
			Weekly:                 Daily(9*60, 18*60),
			SlotGranularityMinutes: 60,
			BlockedRanges:          []BlockedRange{{Date: monday, StartMinute: 12 * 60, EndMinute: 13 * 60}},
		}
		got := rules.DayWindows(monday)
		if len(got) != 2 {
			t.Fatalf("expected two windows, got %+v", got)
		}
		if got[0].End.Hour() != 12 || got[1].Start.Hour() != 13 {
			t.Fatalf("unexpected split %+v", got)
		}
	})

	t.Run("weekday without windows is closed", func(t *testing.T) {
		t.Parallel()
		rules := Rules{
			Location:               loc,
			Weekly:                 map[time.Weekday][]Window{time.Tuesday: {{OpenMinute: 540, CloseMinute: 1080}}},
			SlotGranularityMinutes: 60,
		}
		if got := rules.DayWindows(monday); len(got) != 0 {
			t.Fatalf("expected closed monday, got %+v", got)
		}
	})
}

func TestRules_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rules Rules
		ok    bool
	}{
		{name: "valid", rules: Rules{Weekly: Daily(540, 1080), SlotGranularityMinutes: 30}, ok: true},
		{name: "zero granularity", rules: Rules{Weekly: Daily(540, 1080)}},
		{name: "inverted window", rules: Rules{Weekly: Daily(1080, 540), SlotGranularityMinutes: 30}},
		{name: "range past midnight", rules: Rules{
			SlotGranularityMinutes: 30,
			BlockedRanges:          []BlockedRange{{StartMinute: 1380, EndMinute: 1500}},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.rules.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid rules, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidRules) {
				t.Fatalf("expected ErrInvalidRules, got %v", err)
			}
		})
	}
}

func TestDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2024-02-28")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := d.AddDays(2).String(); got != "2024-03-01" {
		t.Fatalf("expected leap-year rollover, got %s", got)
	}
	if got := d.DaysUntil(Date{Year: 2024, Month: time.March, Day: 31}); got != 32 {
		t.Fatalf("expected 32 days, got %d", got)
	}
	if !d.Before(d.AddDays(1)) || d.AddDays(1).Before(d) {
		t.Fatal("unexpected ordering")
	}
}
