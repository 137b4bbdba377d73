package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"itincal/internal/model"
)

// ItemStore handles timeline item persistence, partitioned by session.
type ItemStore struct {
	db *DB
}

// NewItemStore creates a new item store
func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertItemSQL = `
	INSERT INTO timeline_items (
	    session_id, id, title, description, location_name, lat, lng, has_coords,
	    start_at, end_at, start_unix, end_unix, provenance, activity_id,
	    immutable, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (session_id, id) DO UPDATE SET
	    title = excluded.title,
	    description = excluded.description,
	    location_name = excluded.location_name,
	    lat = excluded.lat,
	    lng = excluded.lng,
	    has_coords = excluded.has_coords,
	    start_at = excluded.start_at,
	    end_at = excluded.end_at,
	    start_unix = excluded.start_unix,
	    end_unix = excluded.end_unix,
	    provenance = excluded.provenance,
	    activity_id = excluded.activity_id,
	    immutable = excluded.immutable,
	    updated_at = excluded.updated_at
`

func saveItem(ctx context.Context, ex execer, session string, it model.TimelineItem) error {
	if err := it.Validate(); err != nil {
		return fmt.Errorf("save item %s: %w", it.ID, err)
	}
	_, err := ex.ExecContext(ctx, upsertItemSQL,
		session, it.ID, it.Title, it.Description,
		it.Location.Name, it.Location.Latitude, it.Location.Longitude, it.Location.HasCoords,
		it.Start.Format(time.RFC3339Nano), it.End.Format(time.RFC3339Nano),
		it.Start.UnixNano(), it.End.UnixNano(),
		string(it.Provenance), it.ActivityID, it.Immutable,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Save inserts or replaces one item.
func (s *ItemStore) Save(ctx context.Context, session string, it model.TimelineItem) error {
	return saveItem(ctx, s.db.conn, session, it)
}

// SaveAll upserts items in one transaction.
func (s *ItemStore) SaveAll(ctx context.Context, session string, items []model.TimelineItem) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if err := saveItem(ctx, tx, session, it); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes one item; ErrNotFound if it does not exist.
func (s *ItemStore) Delete(ctx context.Context, session, id string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM timeline_items WHERE session_id = ? AND id = ?`, session, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one item by ID.
func (s *ItemStore) Get(ctx context.Context, session, id string) (model.TimelineItem, error) {
	row := s.db.conn.QueryRowContext(ctx, selectItemSQL+` WHERE session_id = ? AND id = ?`, session, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return model.TimelineItem{}, ErrNotFound
	}
	return it, err
}

// List returns every item of session ordered by start.
func (s *ItemStore) List(ctx context.Context, session string) ([]model.TimelineItem, error) {
	return s.query(ctx, selectItemSQL+`
		WHERE session_id = ?
		ORDER BY start_unix, end_unix, id`, session)
}

// ListBetween returns the items of session intersecting [from, to).
func (s *ItemStore) ListBetween(ctx context.Context, session string, from, to time.Time) ([]model.TimelineItem, error) {
	return s.query(ctx, selectItemSQL+`
		WHERE session_id = ? AND start_unix < ? AND end_unix > ?
		ORDER BY start_unix, end_unix, id`, session, to.UnixNano(), from.UnixNano())
}

// ReplaceAll atomically swaps the content of session for items.
func (s *ItemStore) ReplaceAll(ctx context.Context, session string, items []model.TimelineItem) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_items WHERE session_id = ?`, session); err != nil {
			return err
		}
		for _, it := range items {
			if err := saveItem(ctx, tx, session, it); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear removes every item of session.
func (s *ItemStore) Clear(ctx context.Context, session string) error {
	_, err := s.db.conn.ExecContext(ctx, `DELETE FROM timeline_items WHERE session_id = ?`, session)
	return err
}

// Sessions lists the session IDs that have at least one item.
func (s *ItemStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT DISTINCT session_id FROM timeline_items ORDER BY session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const selectItemSQL = `
	SELECT id, title, description, location_name, lat, lng, has_coords,
	       start_at, end_at, provenance, activity_id, immutable
	FROM timeline_items`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (model.TimelineItem, error) {
	var (
		it         model.TimelineItem
		start, end string
		prov       string
	)
	err := row.Scan(
		&it.ID, &it.Title, &it.Description,
		&it.Location.Name, &it.Location.Latitude, &it.Location.Longitude, &it.Location.HasCoords,
		&start, &end, &prov, &it.ActivityID, &it.Immutable,
	)
	if err != nil {
		return model.TimelineItem{}, err
	}
	if it.Start, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return model.TimelineItem{}, fmt.Errorf("item %s start: %w", it.ID, err)
	}
	if it.End, err = time.Parse(time.RFC3339Nano, end); err != nil {
		return model.TimelineItem{}, fmt.Errorf("item %s end: %w", it.ID, err)
	}
	it.Provenance = model.Provenance(prov)
	return it, nil
}

func (s *ItemStore) query(ctx context.Context, q string, args ...any) ([]model.TimelineItem, error) {
	rows, err := s.db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TimelineItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
