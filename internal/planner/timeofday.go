package planner

import (
	"strings"
	"unicode"

	"itincal/internal/model"
)

// TimeOfDayRule awards Score to activities mentioning one of Keywords when
// the gap falls in Context.
type TimeOfDayRule struct {
	Context  model.DayContext
	Keywords []string
	Score    float64
}

// TimeOfDayTable is an ordered rule set with fallbacks. A keyword found in the
// title earns the rule score, one found only in the description earns the
// rule score minus DescriptionPenalty. With no match for the gap's context,
// an activity that matches a top-scored rule of another context gets
// MismatchScore and anything else gets NeutralScore.
type TimeOfDayTable struct {
	Rules              []TimeOfDayRule
	DescriptionPenalty float64
	NeutralScore       float64
	MismatchScore      float64
}

// DefaultTimeOfDayTable returns the built-in heuristic. Scores are
// 100/90 for title matches, 85/75 for description matches, 70 neutral and
// 60 when the activity clearly belongs to another part of the day.
func DefaultTimeOfDayTable() *TimeOfDayTable {
	return &TimeOfDayTable{
		Rules: []TimeOfDayRule{
			{model.Morning, []string{"breakfast", "brunch", "coffee", "cafe", "bakery", "market", "sunrise", "yoga"}, 100},
			{model.Morning, []string{"tour", "walk", "hike", "park", "garden", "run", "bike"}, 90},
			{model.Afternoon, []string{"lunch", "museum", "gallery", "workshop", "class", "exhibition"}, 100},
			{model.Afternoon, []string{"tour", "shopping", "park", "market", "boat", "beach", "tea"}, 90},
			{model.Evening, []string{"dinner", "wine", "bar", "cocktail", "cocktails", "nightlife", "club", "concert", "theater", "theatre", "jazz"}, 100},
			{model.Evening, []string{"sunset", "show", "tasting", "food", "rooftop", "cruise"}, 90},
		},
		DescriptionPenalty: 15,
		NeutralScore:       70,
		MismatchScore:      60,
	}
}

// Score rates how well a fits ctx, in [0, 100].
func (t *TimeOfDayTable) Score(a model.CandidateActivity, ctx model.DayContext) float64 {
	title := tokenize(a.Title)
	desc := tokenize(a.Description)

	best, matched := 0.0, false
	for _, r := range t.Rules {
		if r.Context != ctx {
			continue
		}
		var s float64
		switch {
		case containsAny(title, r.Keywords):
			s = r.Score
		case containsAny(desc, r.Keywords):
			s = r.Score - t.DescriptionPenalty
		default:
			continue
		}
		if !matched || s > best {
			best, matched = s, true
		}
	}
	if matched {
		return clamp(best)
	}

	top := t.topScore()
	for _, r := range t.Rules {
		if r.Context == ctx || r.Score < top {
			continue
		}
		if containsAny(title, r.Keywords) || containsAny(desc, r.Keywords) {
			return clamp(t.MismatchScore)
		}
	}
	return clamp(t.NeutralScore)
}

func (t *TimeOfDayTable) topScore() float64 {
	top := 0.0
	for _, r := range t.Rules {
		if r.Score > top {
			top = r.Score
		}
	}
	return top
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
		// crude plural folding: "museums" -> "museum"
		if len(f) > 3 && strings.HasSuffix(f, "s") {
			out[strings.TrimSuffix(f, "s")] = struct{}{}
		}
	}
	return out
}

func containsAny(tokens map[string]struct{}, keywords []string) bool {
	for _, k := range keywords {
		if _, ok := tokens[k]; ok {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
