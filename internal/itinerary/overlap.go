package itinerary

import (
	"fmt"
	"time"

	"itincal/internal/model"
)

// Overlaps reports whether [s1,e1) and [s2,e2) share any instant.
// Back-to-back intervals (e1 == s2) do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// WouldOverlap reports whether [start,end) intersects any existing item.
func WouldOverlap(items []model.TimelineItem, start, end time.Time) bool {
	for _, it := range items {
		if Overlaps(it.Start, it.End, start, end) {
			return true
		}
	}
	return false
}

// Conflicts returns the items whose interval intersects [start,end), in input order.
func Conflicts(items []model.TimelineItem, start, end time.Time) []model.TimelineItem {
	var out []model.TimelineItem
	for _, it := range items {
		if Overlaps(it.Start, it.End, start, end) {
			out = append(out, it)
		}
	}
	return out
}

// CheckNoOverlap verifies pairwise that no two items overlap and returns an
// error naming the first offending pair.
func CheckNoOverlap(items []model.TimelineItem) error {
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if Overlaps(a.Start, a.End, b.Start, b.End) {
				return fmt.Errorf("%w: %q [%s, %s) and %q [%s, %s)", ErrOverlap,
					a.Title, a.Start.Format(time.Kitchen), a.End.Format(time.Kitchen),
					b.Title, b.Start.Format(time.Kitchen), b.End.Format(time.Kitchen))
			}
		}
	}
	return nil
}
