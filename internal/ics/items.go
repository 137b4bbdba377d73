package ics

import (
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"itincal/internal/itinerary"
	appLog "itincal/internal/log"
	"itincal/internal/model"
)

// maxInstancesPerEvent caps what one rule may contribute to a single window.
const maxInstancesPerEvent = 500

// Window is the half-open interval an import covers.
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow returns [00:00, next 00:00) of day's calendar date in loc.
func DayWindow(day time.Time, loc *time.Location) Window {
	d := day.In(loc)
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return Window{From: from, To: from.AddDate(0, 0, 1)}
}

func (w Window) meets(start, end time.Time) bool {
	return itinerary.Overlaps(start, end, w.From, w.To)
}

// ItemID is the timeline ID of one calendar instance: feed, UID and the
// instance's original start in UTC. It survives re-imports, display zone
// changes and edits that move the instance.
func ItemID(feedID, uid string, original time.Time) string {
	return strings.Join([]string{feedID, uid, original.UTC().Format(time.RFC3339)}, ":")
}

// TimelineItems expands the events of one feed into immutable items whose
// interval meets w, reported in loc and sorted by start. Edited instances
// (RECURRENCE-ID) replace the instance they name. All-day events occupy no
// time window and are left out.
func TimelineItems(feedID string, events []Event, w Window, loc *time.Location) []model.TimelineItem {
	if loc == nil {
		loc = time.Local
	}

	edits := make(map[string]map[int64]Event)
	base := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Replaces == nil {
			base = append(base, ev)
			continue
		}
		if edits[ev.UID] == nil {
			edits[ev.UID] = make(map[int64]Event)
		}
		edits[ev.UID][ev.Replaces.Unix()] = ev
	}

	var items []model.TimelineItem
	add := func(original time.Time, ev Event) {
		if ev.AllDay || !w.meets(ev.Start, ev.End) {
			return
		}
		items = append(items, model.TimelineItem{
			ID:          ItemID(feedID, ev.UID, original),
			Title:       titleOf(ev),
			Description: ev.Description,
			Location:    ev.Place,
			Start:       ev.Start.In(loc),
			End:         ev.End.In(loc),
			Provenance:  model.ProvenanceExternalCalendar,
			Immutable:   true,
		})
	}

	for _, ev := range base {
		if ev.AllDay {
			continue
		}
		for _, start := range instanceStarts(ev, w) {
			key := start.Unix()
			if edited, ok := edits[ev.UID][key]; ok {
				delete(edits[ev.UID], key)
				add(start, edited)
				continue
			}
			inst := ev
			inst.Start, inst.End = start, start.Add(ev.length())
			add(start, inst)
		}
	}

	// Edits whose original slot lies outside the expanded range can still
	// have been moved into the window.
	for _, byStart := range edits {
		for _, edited := range byStart {
			add(*edited.Replaces, edited)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Start.Before(items[j].Start)
	})
	return items
}

// instanceStarts lists the original starts of ev that can meet w. Instances
// starting up to one event length before the window still reach into it.
func instanceStarts(ev Event, w Window) []time.Time {
	if ev.Rule == "" {
		return []time.Time{ev.Start}
	}

	r, err := rrule.StrToRRule(ev.Rule)
	if err != nil {
		appLog.Warn("ics RRULE ignored", "uid", ev.UID, "rrule", ev.Rule, "err", err)
		return []time.Time{ev.Start}
	}
	r.DTStart(ev.Start)

	zone := ev.Start.Location()
	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.Except {
		set.ExDate(ex.In(zone))
	}

	starts := set.Between(w.From.Add(-ev.length()).In(zone), w.To.In(zone), true)
	if len(starts) > maxInstancesPerEvent {
		appLog.Warn("ics recurrence truncated", "uid", ev.UID, "instances", len(starts), "cap", maxInstancesPerEvent)
		starts = starts[:maxInstancesPerEvent]
	}
	return starts
}

func titleOf(ev Event) string {
	if ev.Title != "" {
		return ev.Title
	}
	return "Busy"
}
