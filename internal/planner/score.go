package planner

import (
	"math"
	"sort"
	"time"

	"itincal/internal/duration"
	"itincal/internal/geo"
	"itincal/internal/model"
)

// Duration fit bands.
const (
	perfectLow = 0.85
	goodLow    = 0.65

	scorePerfect = 100
	scoreGood    = 80
	scoreTight   = 60
	scoreTooLong = 0

	// neutralProximity is used when a gap has no neighbors.
	neutralProximity = 50
)

// Scorer ranks candidate activities against one gap.
type Scorer struct {
	Geo       *geo.Calculator
	Policy    RankingPolicy
	TimeOfDay *TimeOfDayTable
	// BufferMinutes offsets the suggested start from the gap start.
	BufferMinutes int
	// MaxResults truncates the ranking; zero or negative keeps everything.
	MaxResults int
}

// NewScorer returns a Scorer with the default buffer, table and top-3 cut.
func NewScorer(calc *geo.Calculator, policy RankingPolicy) *Scorer {
	return &Scorer{
		Geo:           calc,
		Policy:        policy,
		TimeOfDay:     DefaultTimeOfDayTable(),
		BufferMinutes: DefaultScoringBufferMinutes,
		MaxResults:    DefaultMaxSuggestions,
	}
}

// Score evaluates every candidate against gap and returns the placements that
// fit, best first. Ties keep input order.
func (s *Scorer) Score(gap model.TimeGap, candidates []model.CandidateActivity) []model.FitResult {
	results := make([]model.FitResult, 0, len(candidates))
	for _, c := range candidates {
		r, ok := s.Evaluate(gap, c)
		if !ok {
			continue
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if s.MaxResults > 0 && len(results) > s.MaxResults {
		results = results[:s.MaxResults]
	}
	return results
}

// Evaluate scores a single candidate. ok is false when the suggested
// interval would run past the end of the gap.
func (s *Scorer) Evaluate(gap model.TimeGap, c model.CandidateActivity) (model.FitResult, bool) {
	minutes := duration.ParseMinutes(c.Duration)

	start := gap.Start.Add(time.Duration(s.BufferMinutes) * time.Minute)
	end := start.Add(time.Duration(minutes) * time.Minute)
	if end.After(gap.End) {
		return model.FitResult{}, false
	}

	ratio := utilization(minutes, gap.OptimalMinutes)
	fit, durScore := DurationFitFor(ratio)

	res := model.FitResult{
		Activity:       c,
		Gap:            gap,
		Utilization:    ratio,
		DurationFit:    fit,
		DurationScore:  durScore,
		SuggestedStart: start,
		SuggestedEnd:   end,
	}

	var proximity []float64
	if gap.Before != nil {
		d := s.Geo.Distance(gap.Before.Location, c.Location)
		res.DistanceToPrevKm = &d
		proximity = append(proximity, ProximityScore(d))
	}
	if gap.After != nil {
		d := s.Geo.Distance(gap.After.Location, c.Location)
		res.DistanceToNextKm = &d
		proximity = append(proximity, ProximityScore(d))
	}
	res.ProximityScore = average(proximity, neutralProximity)

	table := s.TimeOfDay
	if table == nil {
		table = DefaultTimeOfDayTable()
	}
	res.TimeOfDayScore = table.Score(c, gap.DayContext)

	w := s.Policy.Weights()
	res.Score = w.Duration*res.DurationScore + w.Proximity*res.ProximityScore + w.TimeOfDay*res.TimeOfDayScore
	return res, true
}

// DurationFitFor bands a utilisation ratio.
func DurationFitFor(ratio float64) (model.DurationFit, float64) {
	switch {
	case ratio > 1.0:
		return model.FitTooLong, scoreTooLong
	case ratio >= perfectLow:
		return model.FitPerfect, scorePerfect
	case ratio >= goodLow:
		return model.FitGood, scoreGood
	default:
		return model.FitTight, scoreTight
	}
}

// ProximityScore bands a distance in kilometers. Unreachable distances get
// the lowest band.
func ProximityScore(km float64) float64 {
	switch {
	case km < 1:
		return 100
	case km < 2:
		return 75
	case km < 5:
		return 50
	default:
		return 25
	}
}

func utilization(minutes, optimal int) float64 {
	if optimal <= 0 {
		return math.Inf(1)
	}
	return float64(minutes) / float64(optimal)
}

func average(vals []float64, empty float64) float64 {
	if len(vals) == 0 {
		return empty
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
