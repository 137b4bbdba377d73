package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"itincal/internal/duration"
	"itincal/internal/model"
)

func gapOf(minutes int) model.TimeGap {
	return model.TimeGap{
		Start:           at(10, 0),
		End:             at(10, minutes),
		DurationMinutes: minutes,
		OptimalMinutes:  max(0, minutes-DefaultGapBufferMinutes),
		DayContext:      model.Morning,
	}
}

func activity(id, dur string) model.CandidateActivity {
	return model.CandidateActivity{ID: id, Title: "Activity " + id, Duration: dur}
}

func ids(acts []model.CandidateActivity) []string {
	out := make([]string, 0, len(acts))
	for _, a := range acts {
		out = append(out, a.ID)
	}
	return out
}

func TestFilterByDuration_AdmitsOnlyWhatFits(t *testing.T) {
	pool := []model.CandidateActivity{
		activity("30", "30 minutes"),
		activity("60", "1 hour"),
		activity("180", "3 hours"),
		activity("unknown", ""),
	}

	got := FilterByDuration(gapOf(120), pool, 20)

	assert.Equal(t, []string{"30", "60"}, ids(got))
}

func TestFilterByDuration_BufferExceedsGap(t *testing.T) {
	pool := []model.CandidateActivity{activity("tiny", "5 minutes"), activity("x", "1h")}

	assert.Empty(t, FilterByDuration(gapOf(120), pool, 130))
	assert.Empty(t, FilterByDuration(gapOf(20), pool, 20))
}

func TestFilterByDuration_ExactFitPasses(t *testing.T) {
	got := FilterByDuration(gapOf(120), []model.CandidateActivity{activity("100", "100 minutes")}, 20)
	assert.Equal(t, []string{"100"}, ids(got))
}

func TestFilterByDuration_Monotonic(t *testing.T) {
	durations := []string{"15m", "30 minutes", "45 min", "1h", "1h 15m", "90 minutes", "2 hours", "3h", "", "abc"}
	for _, gapMin := range []int{30, 60, 95, 120, 140, 200} {
		g := gapOf(gapMin)
		for _, a := range durations {
			for _, b := range durations {
				if duration.ParseMinutes(a) > duration.ParseMinutes(b) {
					continue
				}
				bPasses := len(FilterByDuration(g, []model.CandidateActivity{activity("b", b)}, 20)) == 1
				aPasses := len(FilterByDuration(g, []model.CandidateActivity{activity("a", a)}, 20)) == 1
				if bPasses {
					assert.True(t, aPasses, "gap %d: %q passes but shorter %q does not", gapMin, b, a)
				}
			}
		}
	}
}
