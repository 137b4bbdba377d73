package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itincal/internal/model"
	"itincal/internal/planner"
)

const poolYAML = `- id: moma
  title: MoMA
  duration: 2 hours
  location:
    name: Midtown
    lat: 40.7614
    lng: -73.9776
- id: coffee
  title: Coffee
  duration: 30 minutes
`

// resetFlags restores package flag state between Execute calls.
func resetFlags() {
	planJSON, suggestPolicy, suggestLimit = false, "", 0
	addDate, addFrom, addTo, addPlace, addLat, addLng = "today", "", "", "", 0, 0
	clearForce, listRefresh, itemsJSON = false, false, false
	sessionID = ""
}

func newWorkspace(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	pool := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(pool, []byte(poolYAML), 0o600))

	cfgPath := filepath.Join(dir, "itincal.yaml")
	yml := "timezone: UTC\n" +
		"database: " + filepath.Join(dir, "itincal.db") + "\n" +
		"cache_dir: " + filepath.Join(dir, "cache") + "\n" +
		"candidates:\n  file: " + pool + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yml), 0o600))

	return []string{"--config", cfgPath, "--env", filepath.Join(dir, "none.env")}
}

func run(t *testing.T, global []string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(append([]string{}, global...), args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_AddGapsRemoveClear(t *testing.T) {
	g := newWorkspace(t)

	out, err := run(t, g, "add", "Dinner", "--date", "2025-06-10", "--from", "19:00", "--to", "20:30")
	require.NoError(t, err)
	assert.Contains(t, out, "19:00-20:30 Dinner")

	_, err = run(t, g, "add", "Drinks", "--date", "2025-06-10", "--from", "20:00", "--to", "21:00")
	assert.ErrorContains(t, err, "overlaps")

	_, err = run(t, g, "add", "Backwards", "--date", "2025-06-10", "--from", "12:00", "--to", "11:00")
	assert.ErrorContains(t, err, "end must be after start")

	out, err = run(t, g, "gaps", "2025-06-10", "--json")
	require.NoError(t, err)
	var gaps []model.TimeGap
	require.NoError(t, json.Unmarshal([]byte(out), &gaps))
	require.Len(t, gaps, 2)
	assert.Equal(t, time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC), gaps[0].Start.UTC())
	assert.Equal(t, 660, gaps[0].DurationMinutes)
	require.NotNil(t, gaps[1].Before)
	assert.Equal(t, "Dinner", gaps[1].Before.Title)

	out, err = run(t, g, "gaps", "2025-06-10")
	require.NoError(t, err)
	assert.Contains(t, out, "PREV")
	assert.Contains(t, out, "Dinner")

	_, err = run(t, g, "remove", "nope")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, g, "clear")
	assert.ErrorContains(t, err, "--force")

	out, err = run(t, g, "clear", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 items")
}

func TestCLI_SuggestAndActivities(t *testing.T) {
	g := newWorkspace(t)

	_, err := run(t, g, "add", "Dinner", "--date", "2025-06-10", "--from", "19:00", "--to", "20:30")
	require.NoError(t, err)

	out, err := run(t, g, "suggest", "2025-06-10", "--json", "--limit", "1")
	require.NoError(t, err)
	var res []planner.GapSuggestions
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 2)
	require.Len(t, res[0].Suggestions, 1)
	assert.NotEmpty(t, res[0].Suggestions[0].Activity.Title)

	out, err = run(t, g, "activities")
	require.NoError(t, err)
	assert.Contains(t, out, "MoMA")
	assert.Contains(t, out, "Coffee")

	_, err = run(t, g, "suggest", "--policy", "vibes")
	assert.ErrorContains(t, err, "unknown ranking policy")
}

func TestCLI_ImportWithoutSources(t *testing.T) {
	g := newWorkspace(t)
	_, err := run(t, g, "import", "2025-06-10")
	assert.ErrorContains(t, err, "no ICS sources")
}

func TestClockOn(t *testing.T) {
	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	got, err := clockOn(day, "07:45")
	require.NoError(t, err)
	assert.Equal(t, day.Add(7*time.Hour+45*time.Minute), got)

	_, err = clockOn(day, "7pm")
	assert.Error(t, err)
}

func TestFormatKm(t *testing.T) {
	d := 2.345
	assert.Equal(t, "-", formatKm(nil))
	assert.Equal(t, "2.3km", formatKm(&d))
}
