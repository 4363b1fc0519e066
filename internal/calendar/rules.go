package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/booking-pipeline/internal/scheduler"
)

// MinutesPerDay bounds every minute-of-day value.
const MinutesPerDay = 24 * 60

// ErrInvalidRules indicates calendar rules that cannot be evaluated.
var ErrInvalidRules = errors.New("calendar: invalid rules")

// Window is a half-open [OpenMinute, CloseMinute) span measured from local midnight.
type Window struct {
	OpenMinute  int
	CloseMinute int
}

// BlockedDate closes a whole day. Recurring dates match the same month and
// day in every year.
type BlockedDate struct {
	Date      Date
	Recurring bool
}

// Matches reports whether the blocked date closes d.
func (b BlockedDate) Matches(d Date) bool {
	if b.Recurring {
		return b.Date.Month == d.Month && b.Date.Day == d.Day
	}
	return b.Date == d
}

// BlockedRange closes part of one specific day. It never spans midnight.
type BlockedRange struct {
	Date        Date
	StartMinute int
	EndMinute   int
}

// Rules describes when a business accepts bookings.
type Rules struct {
	Location               *time.Location
	Weekly                 map[time.Weekday][]Window
	BlockedDates           []BlockedDate
	BlockedRanges          []BlockedRange
	SlotGranularityMinutes int
	MinAdvanceHours        int
	EarliestMinute         *int
	LatestMinute           *int
}

// Loc returns the rules' location, defaulting to UTC.
func (r Rules) Loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// MinAdvance returns the minimum lead time as a duration.
func (r Rules) MinAdvance() time.Duration {
	return time.Duration(r.MinAdvanceHours) * time.Hour
}

// Validate reports every structural problem with the rules.
func (r Rules) Validate() error {
	var problems []string
	if r.SlotGranularityMinutes <= 0 {
		problems = append(problems, "slot granularity must be positive")
	}
	if r.MinAdvanceHours < 0 {
		problems = append(problems, "minimum advance hours cannot be negative")
	}
	for day, windows := range r.Weekly {
		for _, w := range windows {
			if !validSpan(w.OpenMinute, w.CloseMinute) {
				problems = append(problems, fmt.Sprintf("%s window [%d, %d) is invalid", day, w.OpenMinute, w.CloseMinute))
			}
		}
	}
	for _, br := range r.BlockedRanges {
		if !validSpan(br.StartMinute, br.EndMinute) {
			problems = append(problems, fmt.Sprintf("blocked range on %s [%d, %d) is invalid", br.Date, br.StartMinute, br.EndMinute))
		}
	}
	if r.EarliestMinute != nil && (*r.EarliestMinute < 0 || *r.EarliestMinute > MinutesPerDay) {
		problems = append(problems, "earliest time of day is out of range")
	}
	if r.LatestMinute != nil && (*r.LatestMinute < 0 || *r.LatestMinute > MinutesPerDay) {
		problems = append(problems, "latest time of day is out of range")
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrInvalidRules, strings.Join(problems, "; "))
}

func validSpan(start, end int) bool {
	return start >= 0 && start < end && end <= MinutesPerDay
}

// Closed reports whether a blocked date closes d entirely.
func (r Rules) Closed(d Date) bool {
	for _, b := range r.BlockedDates {
		if b.Matches(d) {
			return true
		}
	}
	return false
}

// DayWindows expands the rules into the concrete open intervals of day d:
// weekly windows clipped to the daily booking window, minus blocked dates
// and blocked ranges. The result is ordered and non-overlapping.
func (r Rules) DayWindows(d Date) []scheduler.Interval {
	if r.Closed(d) {
		return nil
	}

	earliest, latest := 0, MinutesPerDay
	if r.EarliestMinute != nil {
		earliest = *r.EarliestMinute
	}
	if r.LatestMinute != nil {
		latest = *r.LatestMinute
	}

	loc := r.Loc()
	var open []scheduler.Interval
	for _, w := range r.Weekly[d.Weekday()] {
		start := max(w.OpenMinute, earliest)
		end := min(w.CloseMinute, latest)
		if start >= end {
			continue
		}
		open = append(open, scheduler.Interval{Start: d.At(loc, start), End: d.At(loc, end)})
	}
	open = scheduler.Merge(open)
	if len(open) == 0 {
		return nil
	}

	var cuts []scheduler.Interval
	for _, br := range r.BlockedRanges {
		if br.Date != d {
			continue
		}
		cuts = append(cuts, scheduler.Interval{Start: d.At(loc, br.StartMinute), End: d.At(loc, br.EndMinute)})
	}
	return scheduler.Subtract(open, cuts)
}

// Daily returns weekly rules that open the same window every day of the week.
func Daily(openMinute, closeMinute int) map[time.Weekday][]Window {
	weekly := make(map[time.Weekday][]Window, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		weekly[day] = []Window{{OpenMinute: openMinute, CloseMinute: closeMinute}}
	}
	return weekly
}
