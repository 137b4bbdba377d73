package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Location is a named place. Coordinates are only meaningful when HasCoords
// is set; imported calendar events frequently carry a free-text location
// without a GEO property.
type Location struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lng" yaml:"lng"`
	HasCoords bool    `json:"has_coords" yaml:"has_coords"`
}

// At returns a Location with coordinates set.
func At(name string, lat, lng float64) Location {
	return Location{Name: name, Latitude: lat, Longitude: lng, HasCoords: true}
}

// Valid reports whether the location has in-range coordinates.
func (l Location) Valid() bool {
	if !l.HasCoords {
		return false
	}
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Provenance records where a timeline item came from.
type Provenance string

const (
	ProvenanceExternalCalendar Provenance = "external-calendar"
	ProvenanceAIRecommendation Provenance = "ai-recommendation"
	ProvenanceManual           Provenance = "manual"
)

// Valid reports whether p is one of the known provenance tags.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceExternalCalendar, ProvenanceAIRecommendation, ProvenanceManual:
		return true
	}
	return false
}

// ErrInvalidInterval is returned by Validate when End does not follow Start.
var ErrInvalidInterval = errors.New("end must be after start")

// TimelineItem is a scheduled entry occupying the half-open interval [Start, End).
type TimelineItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    Location   `json:"location"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Provenance  Provenance `json:"provenance"`
	// ActivityID references the CandidateActivity the item was created from.
	ActivityID string `json:"activity_id,omitempty"`
	// Immutable items (external calendar imports) can never be removed.
	Immutable bool `json:"immutable"`
}

// NewTimelineItem builds an item and panics when end is not after start.
// Use it only with intervals the caller computed itself; data read from
// outside the process should go through Validate instead.
func NewTimelineItem(id, title string, loc Location, start, end time.Time, prov Provenance) TimelineItem {
	it := TimelineItem{
		ID:         id,
		Title:      title,
		Location:   loc,
		Start:      start,
		End:        end,
		Provenance: prov,
	}
	if err := it.Validate(); err != nil {
		panic(fmt.Sprintf("model: invalid timeline item %q: %v", id, err))
	}
	return it
}

// Validate checks the End > Start invariant.
func (it TimelineItem) Validate() error {
	if !it.End.After(it.Start) {
		return fmt.Errorf("item %q [%s, %s): %w", it.ID,
			it.Start.Format(time.RFC3339), it.End.Format(time.RFC3339), ErrInvalidInterval)
	}
	return nil
}

// Minutes returns the item duration in whole minutes.
func (it TimelineItem) Minutes() int {
	return int(it.End.Sub(it.Start) / time.Minute)
}

// Price is an optional structured price attached to a candidate activity.
type Price struct {
	Amount   float64 `json:"amount" yaml:"amount"`
	Currency string  `json:"currency" yaml:"currency"`
}

// CandidateActivity is an activity supplied by a recommendation source that
// may be placed into a gap. It is read-only input to the planner.
type CandidateActivity struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Location    Location `json:"location" yaml:"location"`
	// Duration is free text, e.g. "2 hours", "1h 30m", "45 minutes".
	Duration string `json:"duration" yaml:"duration"`
	Price    *Price `json:"price,omitempty" yaml:"price,omitempty"`
	ImageURL string `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// DayContext buckets a time of day.
type DayContext string

const (
	Morning   DayContext = "morning"
	Afternoon DayContext = "afternoon"
	Evening   DayContext = "evening"
)

// ContextForHour maps an hour (0-23) to its DayContext.
func ContextForHour(hour int) DayContext {
	switch {
	case hour < 12:
		return Morning
	case hour < 18:
		return Afternoon
	default:
		return Evening
	}
}

// TimeGap is an open window between scheduled items. It is derived from the
// current timeline on every query and never stored.
type TimeGap struct {
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	DurationMinutes int           `json:"duration_minutes"`
	Before          *TimelineItem `json:"before,omitempty"`
	After           *TimelineItem `json:"after,omitempty"`
	DayContext      DayContext    `json:"day_context"`
	// OptimalMinutes is the usable duration once the transit buffer is taken out.
	OptimalMinutes int `json:"optimal_minutes"`
}

// DurationFit is the categorical outcome of duration utilisation scoring.
type DurationFit string

const (
	FitPerfect DurationFit = "perfect"
	FitGood    DurationFit = "good"
	FitTight   DurationFit = "tight"
	FitTooLong DurationFit = "too-long"
)

// FitResult is a scored placement of one activity into one gap.
type FitResult struct {
	Activity    CandidateActivity `json:"activity"`
	Gap         TimeGap           `json:"gap"`
	Utilization float64           `json:"utilization"`
	// Distances are nil when the gap has no item on that side.
	DistanceToPrevKm *float64    `json:"distance_to_prev_km,omitempty"`
	DistanceToNextKm *float64    `json:"distance_to_next_km,omitempty"`
	DurationFit      DurationFit `json:"duration_fit"`
	DurationScore    float64     `json:"duration_score"`
	ProximityScore   float64     `json:"proximity_score"`
	TimeOfDayScore   float64     `json:"time_of_day_score"`
	Score            float64     `json:"score"`
	SuggestedStart   time.Time   `json:"suggested_start"`
	SuggestedEnd     time.Time   `json:"suggested_end"`
}
