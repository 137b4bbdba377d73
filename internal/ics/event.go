package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "itincal/internal/log"
	"itincal/internal/model"
)

// Event is one VEVENT reduced to what a timeline needs.
type Event struct {
	UID         string
	Title       string
	Description string
	Place       model.Location

	Start  time.Time
	End    time.Time
	AllDay bool

	// Rule is the raw RRULE value, empty for single events.
	Rule   string
	Except []time.Time
	// Replaces is the RECURRENCE-ID of an edited instance; nil on base events.
	Replaces *time.Time
}

func (e Event) length() time.Duration {
	return e.End.Sub(e.Start)
}

// Decode reads the VEVENTs of one feed. Events that cannot be read are
// logged and skipped; only an unreadable calendar is an error.
func Decode(feed Feed, body []byte) ([]Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty calendar")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	vevents := cal.Events()
	events := make([]Event, 0, len(vevents))
	for _, ve := range vevents {
		ev, err := decodeEvent(ve)
		if err != nil {
			appLog.Warn("ics event skipped", "feed", feed.ID, "err", err)
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics feed decoded", "feed", feed.ID, "events", len(events), "skipped", len(vevents)-len(events))
	return events, nil
}

func decodeEvent(ve *ical.VEvent) (Event, error) {
	ev := Event{
		UID:         text(ve, ical.ComponentPropertyUniqueId),
		Title:       text(ve, ical.ComponentPropertySummary),
		Description: text(ve, ical.ComponentPropertyDescription),
		Place:       model.Location{Name: text(ve, ical.ComponentPropertyLocation)},
		Rule:        text(ve, ical.ComponentPropertyRrule),
	}
	if ev.UID == "" {
		return ev, errors.New("VEVENT without UID")
	}
	if lat, lng, ok := parseGeo(text(ve, ical.ComponentPropertyGeo)); ok {
		ev.Place = model.At(ev.Place.Name, lat, lng)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: DTSTART: %w", ev.UID, err)
	}
	ev.Start = start
	ev.AllDay = dateOnly(ve.GetProperty(ical.ComponentPropertyDtStart))

	// Without DTEND or DURATION a timed event ends at DTSTART and an all-day
	// event lasts one day.
	ev.End = start
	if end, err := ve.GetEndAt(); err == nil {
		ev.End = end
	}
	if ev.AllDay && !ev.End.After(ev.Start) {
		ev.End = ev.Start.AddDate(0, 0, 1)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, raw := range strings.Split(p.Value, ",") {
			if t, err := propTime(p, raw, start.Location()); err == nil {
				ev.Except = append(ev.Except, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		t, err := propTime(p, p.Value, start.Location())
		if err != nil {
			return ev, fmt.Errorf("event %s: RECURRENCE-ID: %w", ev.UID, err)
		}
		ev.Replaces = &t
	}
	return ev, nil
}

func text(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func param(p *ical.IANAProperty, key string) string {
	if p == nil {
		return ""
	}
	if vs := p.ICalParameters[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func dateOnly(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	return strings.EqualFold(param(p, "VALUE"), "DATE") || !strings.Contains(p.Value, "T")
}

// propTime reads a DATE or DATE-TIME value in the zone named by the
// property's TZID. Floating values take fallback, the zone of DTSTART.
func propTime(p *ical.IANAProperty, raw string, fallback *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	loc := fallback
	if tz := param(p, "TZID"); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(raw, "Z"):
		return time.Parse("20060102T150405Z", raw)
	case strings.Contains(raw, "T"):
		return time.ParseInLocation("20060102T150405", raw, loc)
	default:
		return time.ParseInLocation("20060102", raw, loc)
	}
}

// parseGeo reads a GEO value ("lat;lng"). Out-of-range pairs are rejected.
func parseGeo(v string) (float64, float64, bool) {
	latStr, lngStr, found := strings.Cut(strings.TrimSpace(v), ";")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return 0, 0, false
	}
	if !model.At("", lat, lng).Valid() {
		return 0, 0, false
	}
	return lat, lng, true
}
