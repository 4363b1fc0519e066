package scheduler

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has a positive length.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether other lies entirely inside the receiver.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Booking is an occupied interval identified by the appointment that holds it.
type Booking struct {
	ID string
	Interval
}

// Conflict details an existing booking that overlaps a candidate.
type Conflict struct {
	WithID string
	Interval
}

// DetectConflicts identifies existing bookings that overlap the candidate.
// A booking sharing the candidate's ID is ignored so a booking can be moved
// without colliding with itself.
func DetectConflicts(existing []Booking, candidate Booking) []Conflict {
	var conflicts []Conflict
	for _, b := range existing {
		if candidate.ID != "" && b.ID == candidate.ID {
			continue
		}
		if b.Overlaps(candidate.Interval) {
			conflicts = append(conflicts, Conflict{WithID: b.ID, Interval: b.Interval})
		}
	}
	return conflicts
}

// HasConflict reports whether any existing booking overlaps the candidate.
func HasConflict(existing []Booking, candidate Booking) bool {
	for _, b := range existing {
		if candidate.ID != "" && b.ID == candidate.ID {
			continue
		}
		if b.Overlaps(candidate.Interval) {
			return true
		}
	}
	return false
}

// OverlappingPairs returns every pair of bookings whose intervals overlap.
func OverlappingPairs(bookings []Booking) [][2]string {
	sorted := append([]Booking(nil), bookings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var pairs [][2]string
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if !sorted[j].Start.Before(sorted[i].End) {
				break
			}
			pairs = append(pairs, [2]string{sorted[i].ID, sorted[j].ID})
		}
	}
	return pairs
}

// Subtract removes every cut interval from the base intervals. The result is
// ordered by start and contains no empty intervals.
func Subtract(base []Interval, cuts []Interval) []Interval {
	remaining := append([]Interval(nil), base...)
	for _, cut := range cuts {
		if !cut.Valid() {
			continue
		}
		next := remaining[:0:0]
		for _, iv := range remaining {
			if !iv.Overlaps(cut) {
				next = append(next, iv)
				continue
			}
			if iv.Start.Before(cut.Start) {
				next = append(next, Interval{Start: iv.Start, End: cut.Start})
			}
			if cut.End.Before(iv.End) {
				next = append(next, Interval{Start: cut.End, End: iv.End})
			}
		}
		remaining = next
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Start.Before(remaining[j].Start) })
	return remaining
}

// Merge coalesces overlapping or touching intervals into an ordered set.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var merged []Interval
	for _, iv := range sorted {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
