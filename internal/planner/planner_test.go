package planner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itincal/internal/geo"
	"itincal/internal/itinerary"
	"itincal/internal/model"
)

func testPool() []model.CandidateActivity {
	return []model.CandidateActivity{
		{ID: "bagels", Title: "Breakfast bagels", Location: model.At("LES", 40.7150, -73.9900), Duration: "30 minutes"},
		{ID: "moma", Title: "MoMA museum", Location: model.At("Midtown", 40.7614, -73.9776), Duration: "2 hours"},
		{ID: "brooklyn-walk", Title: "Bridge walk", Location: model.At("Bridge", 40.7061, -73.9969), Duration: "1h 30m"},
		{ID: "wine", Title: "Wine tasting", Location: model.At("Williamsburg", 40.7150, -73.9600), Duration: "2 hours"},
		{ID: "marathon", Title: "Day trip", Location: model.At("Hudson", 41.7, -73.9), Duration: "10 hours"},
	}
}

func newTestPlanner() *Planner {
	p := New(DefaultOptions(), geo.NewCalculator(geo.NewCache(0)), nil)
	n := 0
	p.idFunc = func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
	return p
}

func TestPlanner_SuggestPerGap(t *testing.T) {
	p := newTestPlanner()
	items := []model.TimelineItem{
		{ID: "meeting", Title: "Meeting", Location: downtown, Start: at(9, 0), End: at(10, 0)},
		{ID: "lunch", Title: "Lunch", Location: williamsburg, Start: at(12, 30), End: at(13, 30)},
		{ID: "show", Title: "Show", Location: model.At("Broadway", 40.7590, -73.9845), Start: at(19, 0), End: at(21, 40)},
	}

	out := p.Suggest(items, testDay, testPool())

	// 08:00-09:00, 10:00-12:30, 13:30-19:00; 21:40-22:00 is under the minimum.
	require.Len(t, out, 3)

	first := out[0]
	assert.Equal(t, 60, first.Gap.DurationMinutes)
	require.Len(t, first.Suggestions, 1, "only the 30 minute breakfast fits in 60-20")
	assert.Equal(t, "bagels", first.Suggestions[0].Activity.ID)

	for _, gs := range out {
		assert.NotNil(t, gs.Suggestions)
		assert.LessOrEqual(t, len(gs.Suggestions), DefaultMaxSuggestions)
		for _, r := range gs.Suggestions {
			assert.NotEqual(t, "marathon", r.Activity.ID)
			assert.False(t, r.SuggestedStart.Before(gs.Gap.Start))
			assert.False(t, r.SuggestedEnd.After(gs.Gap.End))
		}
	}
}

func TestPlanner_SuggestEmptyPool(t *testing.T) {
	out := newTestPlanner().Suggest(nil, testDay, nil)
	require.Len(t, out, 1)
	assert.NotNil(t, out[0].Suggestions)
	assert.Empty(t, out[0].Suggestions)
}

func TestPlanner_AcceptAndRecompute(t *testing.T) {
	p := newTestPlanner()
	tl := itinerary.New()
	require.True(t, tl.Insert(model.TimelineItem{
		ID: "meeting", Title: "Meeting", Location: downtown, Start: at(9, 0), End: at(10, 0),
		Provenance: model.ProvenanceManual,
	}).OK())

	out := p.Suggest(tl.Items(), testDay, testPool())
	require.NotEmpty(t, out)
	var pick model.FitResult
	for _, gs := range out {
		if len(gs.Suggestions) > 0 && gs.Gap.Start.Equal(at(10, 0)) {
			pick = gs.Suggestions[0]
		}
	}
	require.NotEmpty(t, pick.Activity.ID)

	item := p.Accept(pick)
	assert.Equal(t, "gen-1", item.ID)
	assert.Equal(t, pick.Activity.ID, item.ActivityID)
	assert.Equal(t, model.ProvenanceAIRecommendation, item.Provenance)
	assert.Equal(t, pick.SuggestedStart, item.Start)
	assert.Equal(t, pick.SuggestedEnd, item.End)
	assert.False(t, item.Immutable)

	require.True(t, tl.Insert(item).OK())
	require.NoError(t, itinerary.CheckNoOverlap(tl.Items()))

	// The same suggestion cannot be scheduled twice.
	again := p.Accept(pick)
	res := tl.Insert(again)
	assert.False(t, res.OK())

	// Recomputed suggestions skip the scheduled activity and respect the new item.
	for _, gs := range p.Suggest(tl.Items(), testDay, testPool()) {
		for _, r := range gs.Suggestions {
			assert.NotEqual(t, pick.Activity.ID, r.Activity.ID)
			assert.False(t, itinerary.WouldOverlap(tl.Items(), r.SuggestedStart, r.SuggestedEnd))
		}
	}
}

func TestPlanner_SuggestSkipsActivitiesBookedOnOtherDays(t *testing.T) {
	p := newTestPlanner()
	tl := itinerary.New()
	bagels := testPool()[0]
	booked := model.NewTimelineItem("b1", bagels.Title, bagels.Location, at(8, 15), at(8, 45), model.ProvenanceAIRecommendation)
	booked.ActivityID = bagels.ID
	require.True(t, tl.Insert(booked).OK())

	nextDay := testDay.AddDate(0, 0, 1)
	out := p.Suggest(tl.Items(), nextDay, testPool())

	require.Len(t, out, 1, "the booked item belongs to the previous day")
	assert.Equal(t, nextDay.Add(8*time.Hour), out[0].Gap.Start)
	require.NotEmpty(t, out[0].Suggestions)
	for _, r := range out[0].Suggestions {
		assert.NotEqual(t, bagels.ID, r.Activity.ID)
	}
	assert.True(t, tl.Insert(p.Accept(out[0].Suggestions[0])).OK())
}

func TestPlanner_WithOptions(t *testing.T) {
	p := newTestPlanner()
	opts := p.Options()
	opts.MaxSuggestions = 1
	opts.Policy = PolicyDistanceFirst

	q := p.With(opts)
	assert.Equal(t, DefaultMaxSuggestions, p.Options().MaxSuggestions)
	assert.Equal(t, PolicyDistanceFirst, q.Options().Policy)

	for _, gs := range q.Suggest(nil, testDay, testPool()) {
		assert.LessOrEqual(t, len(gs.Suggestions), 1)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]RankingPolicy{
		"":               PolicyDurationFirst,
		"duration-first": PolicyDurationFirst,
		"Distance-First": PolicyDistanceFirst,
		"itinerary-fit":  PolicyItineraryFit,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("random")
	assert.Error(t, err)

	var p RankingPolicy
	require.NoError(t, p.UnmarshalText([]byte("distance-first")))
	assert.Equal(t, PolicyDistanceFirst, p)
	b, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "distance-first", string(b))
}

func TestPolicyWeightsSumToOne(t *testing.T) {
	for _, p := range []RankingPolicy{PolicyDurationFirst, PolicyDistanceFirst, PolicyItineraryFit} {
		w := p.Weights()
		assert.InDelta(t, 1.0, w.Duration+w.Proximity+w.TimeOfDay, 1e-9, p.String())
	}
}

func TestPlanner_Fit(t *testing.T) {
	p := newTestPlanner()
	gap := gapOf(60)

	r, ok := p.Fit(gap, activity("short", "30 minutes"))
	require.True(t, ok)
	assert.Equal(t, gap.Start.Add(15*time.Minute), r.SuggestedStart)

	_, ok = p.Fit(gap, activity("long", "45 minutes"))
	assert.False(t, ok, "45 > 60-20")
}
