// Package planner finds open windows in a day and ranks candidate activities
// that could fill them.
package planner

import (
	"time"

	"github.com/google/uuid"

	"itincal/internal/geo"
	appLog "itincal/internal/log"
	"itincal/internal/model"
)

// GapSuggestions pairs a gap with its ranked placements. Suggestions is empty,
// never nil, when nothing fits.
type GapSuggestions struct {
	Gap         model.TimeGap     `json:"gap"`
	Suggestions []model.FitResult `json:"suggestions"`
}

// Planner runs gap detection, temporal filtering and scoring with one set of
// Options.
type Planner struct {
	opts   Options
	geo    *geo.Calculator
	table  *TimeOfDayTable
	idFunc func() string
}

// New creates a Planner. A nil table uses DefaultTimeOfDayTable.
func New(opts Options, calc *geo.Calculator, table *TimeOfDayTable) *Planner {
	if table == nil {
		table = DefaultTimeOfDayTable()
	}
	return &Planner{
		opts:   opts,
		geo:    calc,
		table:  table,
		idFunc: uuid.NewString,
	}
}

// Options returns the planner's configuration.
func (p *Planner) Options() Options {
	return p.opts
}

// With returns a copy of p using opts. The geo calculator and rule table are shared.
func (p *Planner) With(opts Options) *Planner {
	cp := *p
	cp.opts = opts
	return &cp
}

func (p *Planner) scorer() *Scorer {
	return &Scorer{
		Geo:           p.geo,
		Policy:        p.opts.Policy,
		TimeOfDay:     p.table,
		BufferMinutes: p.opts.ScoringBufferMinutes,
		MaxResults:    p.opts.MaxSuggestions,
	}
}

// Gaps returns the open windows of the day containing day.
func (p *Planner) Gaps(items []model.TimelineItem, day time.Time) []model.TimeGap {
	return DetectGaps(items, day, p.opts.GapOptions())
}

// SuggestForGap filters pool for gap and ranks what is left.
func (p *Planner) SuggestForGap(gap model.TimeGap, pool []model.CandidateActivity) []model.FitResult {
	eligible := FilterByDuration(gap, pool, p.opts.FilterBufferMinutes)
	if len(eligible) == 0 {
		return []model.FitResult{}
	}
	return p.scorer().Score(gap, eligible)
}

// Fit places a single activity into gap, applying the same duration filter
// as SuggestForGap. ok is false when the activity does not fit.
func (p *Planner) Fit(gap model.TimeGap, a model.CandidateActivity) (model.FitResult, bool) {
	if len(FilterByDuration(gap, []model.CandidateActivity{a}, p.opts.FilterBufferMinutes)) == 0 {
		return model.FitResult{}, false
	}
	return p.scorer().Evaluate(gap, a)
}

// Suggest detects the gaps of day and ranks pool for each of them. items is
// the whole timeline: gap detection only looks at the items inside the day's
// window, while an activity booked on any day is not suggested again, since
// the timeline would refuse it as a duplicate.
func (p *Planner) Suggest(items []model.TimelineItem, day time.Time, pool []model.CandidateActivity) []GapSuggestions {
	pool = unscheduled(items, pool)
	gaps := p.Gaps(items, day)

	out := make([]GapSuggestions, 0, len(gaps))
	total := 0
	for _, g := range gaps {
		res := p.SuggestForGap(g, pool)
		total += len(res)
		out = append(out, GapSuggestions{Gap: g, Suggestions: res})
	}

	appLog.Debug("planner suggestions computed",
		"day", day.Format("2006-01-02"),
		"items", len(items),
		"pool", len(pool),
		"gaps", len(gaps),
		"suggestions", total,
		"policy", p.opts.Policy.String(),
	)
	return out
}

// Accept turns a suggestion into a timeline item ready for insertion.
func (p *Planner) Accept(r model.FitResult) model.TimelineItem {
	it := model.NewTimelineItem(p.idFunc(), r.Activity.Title, r.Activity.Location,
		r.SuggestedStart, r.SuggestedEnd, model.ProvenanceAIRecommendation)
	it.Description = r.Activity.Description
	it.ActivityID = r.Activity.ID
	return it
}

func unscheduled(items []model.TimelineItem, pool []model.CandidateActivity) []model.CandidateActivity {
	scheduled := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ActivityID != "" {
			scheduled[it.ActivityID] = struct{}{}
		}
	}
	if len(scheduled) == 0 {
		return pool
	}
	out := make([]model.CandidateActivity, 0, len(pool))
	for _, c := range pool {
		if _, ok := scheduled[c.ID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}
