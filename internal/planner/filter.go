package planner

import (
	"itincal/internal/duration"
	"itincal/internal/model"
)

// FilterByDuration keeps the candidates whose parsed duration fits into the
// gap once bufferMinutes are reserved for transit. Input order is preserved.
func FilterByDuration(gap model.TimeGap, candidates []model.CandidateActivity, bufferMinutes int) []model.CandidateActivity {
	available := gap.DurationMinutes - bufferMinutes
	if available <= 0 {
		return nil
	}

	out := make([]model.CandidateActivity, 0, len(candidates))
	for _, c := range candidates {
		if duration.ParseMinutes(c.Duration) <= available {
			out = append(out, c)
		}
	}
	return out
}
