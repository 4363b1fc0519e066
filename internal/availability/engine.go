// Package availability computes bookable slots from calendar rules and the
// bookings a business already holds.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/scheduler"
)

// DefaultMaxRangeDays bounds a single FreeSlots query.
const DefaultMaxRangeDays = 62

var (
	// ErrInvalidRange indicates the requested date range is inverted or too wide.
	ErrInvalidRange = errors.New("availability: invalid range")
	// ErrInvalidDuration indicates a service without a positive duration.
	ErrInvalidDuration = errors.New("availability: service duration must be positive")
)

// Query describes one availability computation. From and To are inclusive
// civil dates in the rules' location.
type Query struct {
	Rules    calendar.Rules
	Duration time.Duration
	From     calendar.Date
	To       calendar.Date
	Existing []scheduler.Booking
	// Exclude names a booking to ignore, used when moving that booking.
	Exclude string
	Now     time.Time
}

// Engine produces free slots. It holds no state between calls.
type Engine struct {
	maxRangeDays int
}

// NewEngine constructs an Engine. Non-positive limits fall back to DefaultMaxRangeDays.
func NewEngine(maxRangeDays int) *Engine {
	if maxRangeDays <= 0 {
		maxRangeDays = DefaultMaxRangeDays
	}
	return &Engine{maxRangeDays: maxRangeDays}
}

// MaxRangeDays returns the widest range the engine accepts.
func (e *Engine) MaxRangeDays() int {
	if e == nil || e.maxRangeDays <= 0 {
		return DefaultMaxRangeDays
	}
	return e.maxRangeDays
}

// Step returns the distance between consecutive candidates: the slot
// granularity, shortened to the service duration when the service is shorter.
func Step(rules calendar.Rules, duration time.Duration) time.Duration {
	step := time.Duration(rules.SlotGranularityMinutes) * time.Minute
	if duration > 0 && duration < step {
		step = duration
	}
	return step
}

// FreeSlots returns every candidate start instant in the range, in
// chronological order and without duplicates. An empty result is not an error.
func (e *Engine) FreeSlots(q Query) ([]time.Time, error) {
	if err := e.ValidateRange(q.From, q.To); err != nil {
		return nil, err
	}
	if q.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if err := q.Rules.Validate(); err != nil {
		return nil, err
	}

	busy := busyIntervals(q.Existing, q.Exclude)
	earliest := q.Now.Add(q.Rules.MinAdvance())
	step := Step(q.Rules, q.Duration)

	var slots []time.Time
	for day := q.From; !q.To.Before(day); day = day.AddDays(1) {
		for _, window := range q.Rules.DayWindows(day) {
			slots = appendWindowSlots(slots, window, q.Duration, step, earliest, busy)
		}
	}
	return slots, nil
}

// ValidateRange rejects inverted ranges and ranges wider than MaxRangeDays.
func (e *Engine) ValidateRange(from, to calendar.Date) error {
	if to.Before(from) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	}
	if days := from.DaysUntil(to) + 1; days > e.MaxRangeDays() {
		return fmt.Errorf("%w: %d days exceeds the %d day limit", ErrInvalidRange, days, e.MaxRangeDays())
	}
	return nil
}

// IsFree reports whether candidate is exactly one of the slots FreeSlots
// would return for the candidate's day. Listing and booking share this path
// so they can never disagree.
func (e *Engine) IsFree(q Query, candidate time.Time) bool {
	day := calendar.DateOf(candidate.In(q.Rules.Loc()))
	q.From, q.To = day, day
	slots, err := e.FreeSlots(q)
	if err != nil {
		return false
	}
	i := sort.Search(len(slots), func(i int) bool { return !slots[i].Before(candidate) })
	return i < len(slots) && slots[i].Equal(candidate)
}

func appendWindowSlots(slots []time.Time, window scheduler.Interval, duration, step time.Duration, earliest time.Time, busy []scheduler.Interval) []time.Time {
	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(step) {
		if start.Before(earliest) {
			continue
		}
		candidate := scheduler.Interval{Start: start, End: start.Add(duration)}
		if overlapsAny(busy, candidate) {
			continue
		}
		slots = append(slots, start)
	}
	return slots
}

func busyIntervals(existing []scheduler.Booking, exclude string) []scheduler.Interval {
	busy := make([]scheduler.Interval, 0, len(existing))
	for _, b := range existing {
		if exclude != "" && b.ID == exclude {
			continue
		}
		busy = append(busy, b.Interval)
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy
}

func overlapsAny(busy []scheduler.Interval, candidate scheduler.Interval) bool {
	for _, b := range busy {
		if !b.Start.Before(candidate.End) {
			return false
		}
		if b.Overlaps(candidate) {
			return true
		}
	}
	return false
}
