package planner

import (
	"fmt"
	"strings"
)

// Defaults. The filter and scoring buffers are deliberately distinct: the
// filter asks "can it fit with transit on both sides", scoring anchors the
// suggestion after a single transition.
const (
	DefaultDayStartHour         = 8
	DefaultDayEndHour           = 22
	DefaultMinGapMinutes        = 30
	DefaultGapBufferMinutes     = 15
	DefaultFilterBufferMinutes  = 20
	DefaultScoringBufferMinutes = 15
	DefaultMaxSuggestions       = 3
)

// RankingPolicy selects how the three score axes are blended.
type RankingPolicy int

const (
	// PolicyDurationFirst ranks within a gap: 0.7 duration + 0.3 proximity.
	PolicyDurationFirst RankingPolicy = iota
	// PolicyDistanceFirst favors short transfers: 0.7 proximity + 0.3 duration.
	PolicyDistanceFirst
	// PolicyItineraryFit is the whole-itinerary blend:
	// 0.4 duration + 0.3 proximity + 0.3 time of day.
	PolicyItineraryFit
)

// Weights are the per-axis multipliers of a policy.
type Weights struct {
	Duration  float64
	Proximity float64
	TimeOfDay float64
}

func (p RankingPolicy) Weights() Weights {
	switch p {
	case PolicyDistanceFirst:
		return Weights{Duration: 0.3, Proximity: 0.7}
	case PolicyItineraryFit:
		return Weights{Duration: 0.4, Proximity: 0.3, TimeOfDay: 0.3}
	default:
		return Weights{Duration: 0.7, Proximity: 0.3}
	}
}

func (p RankingPolicy) String() string {
	switch p {
	case PolicyDistanceFirst:
		return "distance-first"
	case PolicyItineraryFit:
		return "itinerary-fit"
	default:
		return "duration-first"
	}
}

// ParsePolicy maps a config value to a policy. Empty selects the default.
func ParsePolicy(s string) (RankingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "duration-first", "duration":
		return PolicyDurationFirst, nil
	case "distance-first", "distance":
		return PolicyDistanceFirst, nil
	case "itinerary-fit", "itinerary":
		return PolicyItineraryFit, nil
	}
	return PolicyDurationFirst, fmt.Errorf("unknown ranking policy %q", s)
}

func (p RankingPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *RankingPolicy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Options groups every tunable of the planner so callers override them as a unit.
type Options struct {
	DayStartHour         int
	DayEndHour           int
	MinGapMinutes        int
	GapBufferMinutes     int
	FilterBufferMinutes  int
	ScoringBufferMinutes int
	MaxSuggestions       int
	Policy               RankingPolicy
}

func DefaultOptions() Options {
	return Options{
		DayStartHour:         DefaultDayStartHour,
		DayEndHour:           DefaultDayEndHour,
		MinGapMinutes:        DefaultMinGapMinutes,
		GapBufferMinutes:     DefaultGapBufferMinutes,
		FilterBufferMinutes:  DefaultFilterBufferMinutes,
		ScoringBufferMinutes: DefaultScoringBufferMinutes,
		MaxSuggestions:       DefaultMaxSuggestions,
		Policy:               PolicyDurationFirst,
	}
}

// GapOptions returns the subset of Options used by DetectGaps.
func (o Options) GapOptions() GapOptions {
	return GapOptions{
		DayStartHour:  o.DayStartHour,
		DayEndHour:    o.DayEndHour,
		MinGapMinutes: o.MinGapMinutes,
		BufferMinutes: o.GapBufferMinutes,
	}
}
