package web

import (
	"math"
	"time"

	"itincal/internal/model"
	"itincal/internal/planner"
)

type locationDTO struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

func toLocationDTO(l model.Location) locationDTO {
	out := locationDTO{Name: l.Name}
	if l.HasCoords {
		lat, lng := l.Latitude, l.Longitude
		out.Lat, out.Lng = &lat, &lng
	}
	return out
}

func (l locationDTO) model() model.Location {
	if l.Lat != nil && l.Lng != nil {
		return model.At(l.Name, *l.Lat, *l.Lng)
	}
	return model.Location{Name: l.Name}
}

type itemDTO struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Location    locationDTO `json:"location"`
	Start       string      `json:"start"`
	End         string      `json:"end"`
	Minutes     int         `json:"minutes"`
	Provenance  string      `json:"provenance"`
	ActivityID  string      `json:"activity_id,omitempty"`
	Immutable   bool        `json:"immutable"`
}

func toItemDTO(it model.TimelineItem) itemDTO {
	return itemDTO{
		ID:          it.ID,
		Title:       it.Title,
		Description: it.Description,
		Location:    toLocationDTO(it.Location),
		Start:       it.Start.Format(time.RFC3339),
		End:         it.End.Format(time.RFC3339),
		Minutes:     it.Minutes(),
		Provenance:  string(it.Provenance),
		ActivityID:  it.ActivityID,
		Immutable:   it.Immutable,
	}
}

func toItemDTOs(items []model.TimelineItem) []itemDTO {
	out := make([]itemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, toItemDTO(it))
	}
	return out
}

type gapDTO struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
	OptimalMinutes  int    `json:"optimal_minutes"`
	DayContext      string `json:"day_context"`
	BeforeID        string `json:"before_id,omitempty"`
	AfterID         string `json:"after_id,omitempty"`
}

func toGapDTO(g model.TimeGap) gapDTO {
	out := gapDTO{
		Start:           g.Start.Format(time.RFC3339),
		End:             g.End.Format(time.RFC3339),
		DurationMinutes: g.DurationMinutes,
		OptimalMinutes:  g.OptimalMinutes,
		DayContext:      string(g.DayContext),
	}
	if g.Before != nil {
		out.BeforeID = g.Before.ID
	}
	if g.After != nil {
		out.AfterID = g.After.ID
	}
	return out
}

// distanceDTO keeps "no neighbour" (omitted) apart from "unreachable"
// (coordinates missing or invalid), which JSON cannot carry as +Inf.
type distanceDTO struct {
	Km          *float64 `json:"km,omitempty"`
	Unreachable bool     `json:"unreachable,omitempty"`
}

func toDistanceDTO(d *float64) *distanceDTO {
	if d == nil {
		return nil
	}
	if math.IsInf(*d, 0) || math.IsNaN(*d) {
		return &distanceDTO{Unreachable: true}
	}
	v := *d
	return &distanceDTO{Km: &v}
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

type fitDTO struct {
	Activity       model.CandidateActivity `json:"activity"`
	DurationFit    string                  `json:"duration_fit"`
	Utilization    *float64                `json:"utilization"`
	DistanceToPrev *distanceDTO            `json:"distance_to_prev,omitempty"`
	DistanceToNext *distanceDTO            `json:"distance_to_next,omitempty"`
	DurationScore  float64                 `json:"duration_score"`
	ProximityScore float64                 `json:"proximity_score"`
	TimeOfDayScore float64                 `json:"time_of_day_score"`
	Score          float64                 `json:"score"`
	SuggestedStart string                  `json:"suggested_start"`
	SuggestedEnd   string                  `json:"suggested_end"`
}

func toFitDTO(r model.FitResult) fitDTO {
	return fitDTO{
		Activity:       r.Activity,
		DurationFit:    string(r.DurationFit),
		Utilization:    finite(r.Utilization),
		DistanceToPrev: toDistanceDTO(r.DistanceToPrevKm),
		DistanceToNext: toDistanceDTO(r.DistanceToNextKm),
		DurationScore:  r.DurationScore,
		ProximityScore: r.ProximityScore,
		TimeOfDayScore: r.TimeOfDayScore,
		Score:          r.Score,
		SuggestedStart: r.SuggestedStart.Format(time.RFC3339),
		SuggestedEnd:   r.SuggestedEnd.Format(time.RFC3339),
	}
}

type gapSuggestionsDTO struct {
	Gap         gapDTO   `json:"gap"`
	Suggestions []fitDTO `json:"suggestions"`
}

func toGapSuggestionsDTOs(in []planner.GapSuggestions) []gapSuggestionsDTO {
	out := make([]gapSuggestionsDTO, 0, len(in))
	for _, gs := range in {
		fits := make([]fitDTO, 0, len(gs.Suggestions))
		for _, r := range gs.Suggestions {
			fits = append(fits, toFitDTO(r))
		}
		out = append(out, gapSuggestionsDTO{Gap: toGapDTO(gs.Gap), Suggestions: fits})
	}
	return out
}

type createItemRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Location    locationDTO `json:"location"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
}

type acceptRequest struct {
	ActivityID string    `json:"activity_id"`
	GapStart   time.Time `json:"gap_start"`
}

type importResponse struct {
	Date    string    `json:"date"`
	Added   []itemDTO `json:"added"`
	Skipped []string  `json:"skipped"`
	Invalid []string  `json:"invalid"`
}
