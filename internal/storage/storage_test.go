package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itincal/internal/model"
)

// testDB creates an in-memory database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenAndMigrate(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var day = time.Date(2025, 6, 10, 0, 0, 0, 0, time.FixedZone("EDT", -4*3600))

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func item(id string, sh, eh int) model.TimelineItem {
	return model.TimelineItem{
		ID:         id,
		Title:      "Item " + id,
		Location:   model.At("Somewhere", 40.7, -74.0),
		Start:      at(sh, 0),
		End:        at(eh, 0),
		Provenance: model.ProvenanceManual,
	}
}

func TestDB_OpenFileAndMigrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "itincal.db")
	db, err := OpenAndMigrate(Config{Path: path})
	require.NoError(t, err)
	defer db.Close()

	assert.False(t, db.isMemory)
	assert.Equal(t, path, db.path)
	require.NoError(t, db.Migrate(), "migrations are idempotent")

	var n int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestItemStore_SaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore(testDB(t))

	in := item("a", 9, 10)
	in.Description = "notes"
	in.ActivityID = "moma"
	in.Immutable = true
	in.Provenance = model.ProvenanceExternalCalendar
	require.NoError(t, s.Save(ctx, "default", in))

	got, err := s.Get(ctx, "default", "a")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.Location, got.Location)
	assert.True(t, in.Start.Equal(got.Start))
	assert.True(t, in.End.Equal(got.End))
	assert.Equal(t, 9, got.Start.Hour(), "offset survives the round trip")
	assert.Equal(t, in.Provenance, got.Provenance)
	assert.True(t, got.Immutable)
	assert.Equal(t, "moma", got.ActivityID)

	_, err = s.Get(ctx, "other", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemStore_SaveRejectsInvalidInterval(t *testing.T) {
	s := NewItemStore(testDB(t))
	bad := item("bad", 10, 10)
	assert.ErrorIs(t, s.Save(context.Background(), "default", bad), model.ErrInvalidInterval)
}

func TestItemStore_ListBetweenAndSessions(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore(testDB(t))

	require.NoError(t, s.SaveAll(ctx, "default", []model.TimelineItem{
		item("late", 14, 15),
		item("early", 9, 10),
		item("edge", 12, 13),
	}))
	require.NoError(t, s.Save(ctx, "other", item("x", 9, 10)))

	all, err := s.List(ctx, "default")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"early", "edge", "late"}, []string{all[0].ID, all[1].ID, all[2].ID})

	window, err := s.ListBetween(ctx, "default", at(10, 0), at(13, 0))
	require.NoError(t, err)
	require.Len(t, window, 1, "half-open: early ends at 10:00 and is excluded")
	assert.Equal(t, "edge", window[0].ID)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "other"}, sessions)
}

func TestItemStore_DeleteReplaceClear(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore(testDB(t))

	require.NoError(t, s.Save(ctx, "default", item("a", 9, 10)))
	require.NoError(t, s.Delete(ctx, "default", "a"))
	assert.ErrorIs(t, s.Delete(ctx, "default", "a"), ErrNotFound)

	require.NoError(t, s.Save(ctx, "default", item("old", 9, 10)))
	require.NoError(t, s.ReplaceAll(ctx, "default", []model.TimelineItem{item("n1", 11, 12), item("n2", 13, 14)}))
	list, err := s.List(ctx, "default")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n1", list[0].ID)

	// A failing replace leaves the previous content in place.
	err = s.ReplaceAll(ctx, "default", []model.TimelineItem{item("ok", 8, 9), item("bad", 10, 9)})
	assert.Error(t, err)
	list, err = s.List(ctx, "default")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.Clear(ctx, "default"))
	list, err = s.List(ctx, "default")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestActivityStore_UpsertListGet(t *testing.T) {
	ctx := context.Background()
	s := NewActivityStore(testDB(t))

	require.NoError(t, s.Upsert(ctx, []model.CandidateActivity{
		{ID: "moma", Title: "MoMA", Duration: "2 hours", Location: model.At("Midtown", 40.7614, -73.9776),
			Price: &model.Price{Amount: 30, Currency: "USD"}, Category: "museum"},
		{ID: "walk", Title: "Bridge walk", Duration: "1h 30m"},
	}))
	require.NoError(t, s.Upsert(ctx, []model.CandidateActivity{
		{ID: "walk", Title: "Brooklyn Bridge walk", Duration: "90 minutes"},
	}))

	list, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	moma, err := s.Get(ctx, "moma")
	require.NoError(t, err)
	require.NotNil(t, moma.Price)
	assert.Equal(t, 30.0, moma.Price.Amount)
	assert.True(t, moma.Location.HasCoords)

	walk, err := s.Get(ctx, "walk")
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn Bridge walk", walk.Title)
	assert.Nil(t, walk.Price)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
