package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itincal/internal/model"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//itincal//test//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20250601T000000Z
DTSTART:20250610T090000Z
DTEND:20250610T100000Z
SUMMARY:Standup
DESCRIPTION:Daily sync
LOCATION:City Hall
GEO:40.7128;-74.0060
END:VEVENT
BEGIN:VEVENT
UID:lunch
DTSTAMP:20250601T000000Z
DTSTART:20250601T120000Z
DTEND:20250601T123000Z
RRULE:FREQ=DAILY;COUNT=30
EXDATE:20250611T120000Z
SUMMARY:Lunch
LOCATION:Katz's
END:VEVENT
BEGIN:VEVENT
UID:lunch
DTSTAMP:20250601T000000Z
RECURRENCE-ID:20250612T120000Z
DTSTART:20250612T130000Z
DTEND:20250612T133000Z
SUMMARY:Late lunch
LOCATION:Katz's
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTAMP:20250601T000000Z
DTSTART;VALUE=DATE:20250610
DTEND;VALUE=DATE:20250611
SUMMARY:Holiday
END:VEVENT
END:VCALENDAR
`

const overnightICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//itincal//test//EN
BEGIN:VEVENT
UID:train
DTSTAMP:20250601T000000Z
DTSTART:20250609T230000Z
DTEND:20250610T010000Z
RRULE:FREQ=DAILY;COUNT=3
SUMMARY:Night train
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func utcDay(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func decodeSample(t *testing.T, body string) []Event {
	t.Helper()
	events, err := Decode(Feed{ID: "cal"}, crlf(body))
	require.NoError(t, err)
	return events
}

func byID(items []model.TimelineItem) map[string]model.TimelineItem {
	out := make(map[string]model.TimelineItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

func TestDecode_ReadsGeoRuleAndEdits(t *testing.T) {
	events := decodeSample(t, sampleICS)
	require.Len(t, events, 4)

	var standup, lunch, edit, holiday Event
	for _, ev := range events {
		switch {
		case ev.UID == "standup":
			standup = ev
		case ev.UID == "lunch" && ev.Replaces == nil:
			lunch = ev
		case ev.UID == "lunch":
			edit = ev
		case ev.UID == "holiday":
			holiday = ev
		}
	}

	assert.Equal(t, "City Hall", standup.Place.Name)
	assert.True(t, standup.Place.HasCoords)
	assert.InDelta(t, 40.7128, standup.Place.Latitude, 1e-9)
	assert.InDelta(t, -74.0060, standup.Place.Longitude, 1e-9)
	assert.Equal(t, "Daily sync", standup.Description)
	assert.Equal(t, time.Hour, standup.length())

	assert.Equal(t, "Katz's", lunch.Place.Name)
	assert.False(t, lunch.Place.HasCoords)
	assert.NotEmpty(t, lunch.Rule)
	require.Len(t, lunch.Except, 1)
	assert.True(t, lunch.Except[0].Equal(time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)))

	require.NotNil(t, edit.Replaces)
	assert.True(t, edit.Replaces.Equal(time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)))

	assert.True(t, holiday.AllDay)
	assert.Equal(t, 24*time.Hour, holiday.length())
}

func TestDecode_EmptyBody(t *testing.T) {
	_, err := Decode(Feed{ID: "cal"}, nil)
	assert.Error(t, err)
	_, err = Decode(Feed{ID: "cal"}, []byte("  \r\n"))
	assert.Error(t, err)
}

func TestParseGeo(t *testing.T) {
	lat, lng, ok := parseGeo("37.386013;-122.082932")
	require.True(t, ok)
	assert.InDelta(t, 37.386013, lat, 1e-9)
	assert.InDelta(t, -122.082932, lng, 1e-9)

	for _, bad := range []string{"", "37.3", "x;y", "91;0", "0;181"} {
		_, _, ok := parseGeo(bad)
		assert.False(t, ok, bad)
	}
}

func TestPropTime_HonoursTZID(t *testing.T) {
	p := &ical.IANAProperty{BaseProperty: ical.BaseProperty{
		IANAToken:      "EXDATE",
		ICalParameters: map[string][]string{"TZID": {"Europe/Madrid"}},
	}}
	got, err := propTime(p, "20250611T140000", time.UTC)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)), got)

	floating, err := propTime(&ical.IANAProperty{}, "20250611T140000", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 14, floating.Hour())

	date, err := propTime(&ical.IANAProperty{}, "20250611", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, utcDay(time.June, 11), date)
}

func TestTimelineItems_SkipsAllDayAndBuildsStableIDs(t *testing.T) {
	day := utcDay(time.June, 10)
	items := TimelineItems("cal", decodeSample(t, sampleICS), DayWindow(day, time.UTC), time.UTC)
	require.Len(t, items, 2)

	for _, it := range items {
		assert.Equal(t, model.ProvenanceExternalCalendar, it.Provenance)
		assert.True(t, it.Immutable)
		assert.NoError(t, it.Validate())
	}
	assert.Equal(t, "cal:standup:2025-06-10T09:00:00Z", items[0].ID, "sorted by start")
	assert.Equal(t, "Standup", items[0].Title)
	assert.Equal(t, "cal:lunch:2025-06-10T12:00:00Z", items[1].ID)
}

func TestTimelineItems_HonoursExDate(t *testing.T) {
	day := utcDay(time.June, 11)
	assert.Empty(t, TimelineItems("cal", decodeSample(t, sampleICS), DayWindow(day, time.UTC), time.UTC))
}

func TestTimelineItems_EditedInstanceKeepsOriginalID(t *testing.T) {
	day := utcDay(time.June, 12)
	items := TimelineItems("cal", decodeSample(t, sampleICS), DayWindow(day, time.UTC), time.UTC)
	require.Len(t, items, 1)

	lunch := items[0]
	assert.Equal(t, "cal:lunch:2025-06-12T12:00:00Z", lunch.ID)
	assert.Equal(t, "Late lunch", lunch.Title)
	assert.Equal(t, time.Date(2025, 6, 12, 13, 0, 0, 0, time.UTC), lunch.Start)
}

func TestTimelineItems_InstanceFromPreviousDayReachesIn(t *testing.T) {
	day := utcDay(time.June, 10)
	items := TimelineItems("cal", decodeSample(t, overnightICS), DayWindow(day, time.UTC), time.UTC)
	require.Len(t, items, 2)

	assert.Equal(t, "cal:train:2025-06-09T23:00:00Z", items[0].ID)
	assert.Equal(t, time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC), items[0].End, "items keep their real interval")
	assert.Equal(t, "cal:train:2025-06-10T23:00:00Z", items[1].ID)
}

func TestTimelineItems_ReportsInDisplayZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	day := time.Date(2025, 6, 10, 0, 0, 0, 0, ny)
	items := TimelineItems("cal", decodeSample(t, sampleICS), DayWindow(day, ny), ny)
	ids := byID(items)

	standup, ok := ids["cal:standup:2025-06-10T09:00:00Z"]
	require.True(t, ok, "IDs do not depend on the display zone")
	assert.Equal(t, ny, standup.Start.Location())
	assert.Equal(t, 5, standup.Start.Hour())
}

func TestClient_UsesETagCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	c := NewClient(t.TempDir())
	f := Feed{ID: "cal", URL: srv.URL + "/private.ics?token=secret"}

	first, err := c.Get(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Get(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_FallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	c := NewClient(t.TempDir(), WithHTTPClient(srv.Client()))
	f := Feed{ID: "cal", URL: srv.URL}

	_, err := c.Get(context.Background(), f)
	require.NoError(t, err)

	fail.Store(true)
	p, err := c.Get(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, p.Cached)

	_, err = NewClient(t.TempDir()).Get(context.Background(), f)
	assert.ErrorContains(t, err, "500", "no cache to fall back to")
}

func TestClient_GetAllKeepsOrderAndReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.ics" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	feeds := []Feed{
		{ID: "a", URL: srv.URL + "/a.ics"},
		{ID: "gone", URL: srv.URL + "/gone.ics"},
		{ID: "b", URL: srv.URL + "/b.ics"},
		{ID: "blank"},
	}
	got, err := NewClient(t.TempDir()).GetAll(context.Background(), feeds)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Feed.ID)
	assert.Equal(t, "b", got[1].Feed.ID)
	assert.ErrorContains(t, err, "feed gone")
	assert.ErrorContains(t, err, "feed blank")
}

func TestImporter_ImportDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	im := NewImporter(NewClient(t.TempDir()), []Feed{{ID: "cal", URL: srv.URL}}, time.UTC)

	items, err := im.Import(context.Background(), time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 2)

	again, err := im.Import(context.Background(), time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, ids(items), ids(again), "re-import yields the same IDs")
}

func TestImporter_AllFeedsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	im := NewImporter(NewClient(t.TempDir()), []Feed{{ID: "cal", URL: srv.URL}}, time.UTC)
	_, err := im.Import(context.Background(), time.Now())
	assert.Error(t, err)

	empty := NewImporter(NewClient(t.TempDir()), nil, time.UTC)
	items, err := empty.Import(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDayWindow(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	w := DayWindow(time.Date(2025, 6, 10, 2, 0, 0, 0, time.UTC), ny)
	assert.Equal(t, 9, w.From.Day(), "02:00 UTC is still the 9th in New York")
	assert.Equal(t, 24*time.Hour, w.To.Sub(w.From))
}

func ids(items []model.TimelineItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
