package storage

import (
	"context"
	"database/sql"
	"time"

	"itincal/internal/model"
)

// ActivityStore persists the candidate activity pool.
type ActivityStore struct {
	db *DB
}

// NewActivityStore creates a new activity store
func NewActivityStore(db *DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// Upsert inserts or refreshes activities by ID.
func (s *ActivityStore) Upsert(ctx context.Context, activities []model.CandidateActivity) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, a := range activities {
			var amount sql.NullFloat64
			var currency sql.NullString
			if a.Price != nil {
				amount = sql.NullFloat64{Float64: a.Price.Amount, Valid: true}
				currency = sql.NullString{String: a.Price.Currency, Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO activities (
				    id, title, description, location_name, lat, lng, has_coords,
				    duration, price_amount, price_currency, image_url, category, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
				    title = excluded.title,
				    description = excluded.description,
				    location_name = excluded.location_name,
				    lat = excluded.lat,
				    lng = excluded.lng,
				    has_coords = excluded.has_coords,
				    duration = excluded.duration,
				    price_amount = excluded.price_amount,
				    price_currency = excluded.price_currency,
				    image_url = excluded.image_url,
				    category = excluded.category,
				    updated_at = excluded.updated_at
			`,
				a.ID, a.Title, a.Description,
				a.Location.Name, a.Location.Latitude, a.Location.Longitude, a.Location.HasCoords,
				a.Duration, amount, currency, a.ImageURL, a.Category, now,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const selectActivitySQL = `
	SELECT id, title, description, location_name, lat, lng, has_coords,
	       duration, price_amount, price_currency, image_url, category
	FROM activities`

func scanActivity(row scanner) (model.CandidateActivity, error) {
	var (
		a        model.CandidateActivity
		amount   sql.NullFloat64
		currency sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Title, &a.Description,
		&a.Location.Name, &a.Location.Latitude, &a.Location.Longitude, &a.Location.HasCoords,
		&a.Duration, &amount, &currency, &a.ImageURL, &a.Category,
	)
	if err != nil {
		return model.CandidateActivity{}, err
	}
	if amount.Valid {
		a.Price = &model.Price{Amount: amount.Float64, Currency: currency.String}
	}
	return a, nil
}

// List returns the whole pool ordered by ID.
func (s *ActivityStore) List(ctx context.Context) ([]model.CandidateActivity, error) {
	rows, err := s.db.conn.QueryContext(ctx, selectActivitySQL+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CandidateActivity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns one activity by ID.
func (s *ActivityStore) Get(ctx context.Context, id string) (model.CandidateActivity, error) {
	a, err := scanActivity(s.db.conn.QueryRowContext(ctx, selectActivitySQL+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return model.CandidateActivity{}, ErrNotFound
	}
	return a, err
}

// Load satisfies candidates.Source so the stored pool can feed the planner.
func (s *ActivityStore) Load(ctx context.Context) ([]model.CandidateActivity, error) {
	return s.List(ctx)
}
