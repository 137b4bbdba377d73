package planner

import (
	"sort"
	"time"

	"itincal/internal/model"
)

// GapOptions bounds the planning window of one day.
type GapOptions struct {
	DayStartHour  int
	DayEndHour    int
	MinGapMinutes int
	// BufferMinutes is subtracted from each gap to get its optimal usable duration.
	BufferMinutes int
}

// DefaultGapOptions is 08:00-22:00, 30 minute minimum, 15 minute buffer.
func DefaultGapOptions() GapOptions {
	return DefaultOptions().GapOptions()
}

// DayBounds returns the planning window of the calendar day containing day,
// in day's location.
func (o GapOptions) DayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, o.DayStartHour, 0, 0, 0, loc),
		time.Date(y, m, d, o.DayEndHour, 0, 0, 0, loc)
}

// DetectGaps returns the open windows of at least MinGapMinutes between
// items inside the planning window of day, in chronological order. Items are
// not modified. Items that overlap each other (possible after a calendar
// import) are treated as one occupied span.
func DetectGaps(items []model.TimelineItem, day time.Time, opts GapOptions) []model.TimeGap {
	dayStart, dayEnd := opts.DayBounds(day)
	if !dayEnd.After(dayStart) {
		return nil
	}
	// Gaps are reported in the day's zone whatever zone the items carry.
	loc := dayStart.Location()

	sorted := make([]model.TimelineItem, 0, len(items))
	for _, it := range items {
		if it.End.After(dayStart) && it.Start.Before(dayEnd) {
			sorted = append(sorted, it)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var gaps []model.TimeGap
	cursor := dayStart
	var prev *model.TimelineItem

	for i := range sorted {
		it := &sorted[i]
		if it.Start.After(cursor) {
			if g, ok := newGap(cursor.In(loc), it.Start.In(loc), prev, it, opts); ok {
				gaps = append(gaps, g)
			}
		}
		if it.End.After(cursor) {
			cursor = it.End
			prev = it
		}
		if !cursor.Before(dayEnd) {
			return gaps
		}
	}

	if g, ok := newGap(cursor.In(loc), dayEnd, prev, nil, opts); ok {
		gaps = append(gaps, g)
	}
	return gaps
}

func newGap(start, end time.Time, before, after *model.TimelineItem, opts GapOptions) (model.TimeGap, bool) {
	minutes := int(end.Sub(start) / time.Minute)
	if minutes < opts.MinGapMinutes || minutes <= 0 {
		return model.TimeGap{}, false
	}
	optimal := minutes - opts.BufferMinutes
	if optimal < 0 {
		optimal = 0
	}
	return model.TimeGap{
		Start:           start,
		End:             end,
		DurationMinutes: minutes,
		Before:          before,
		After:           after,
		DayContext:      model.ContextForHour(start.Hour()),
		OptimalMinutes:  optimal,
	}, true
}
