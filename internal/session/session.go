// Package session keeps one timeline per traveler session and writes every
// successful mutation through to a store.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"itincal/internal/itinerary"
	appLog "itincal/internal/log"
	"itincal/internal/model"
)

// DefaultID is used when a caller does not name a session.
const DefaultID = "default"

// Store is the persistence a session writes through to.
type Store interface {
	List(ctx context.Context, session string) ([]model.TimelineItem, error)
	Save(ctx context.Context, session string, it model.TimelineItem) error
	SaveAll(ctx context.Context, session string, items []model.TimelineItem) error
	Delete(ctx context.Context, session, id string) error
	Clear(ctx context.Context, session string) error
}

// Session is a timeline bound to an ID. Writes are serialized so the store
// sees mutations in the same order as the timeline.
type Session struct {
	ID string

	mu    sync.Mutex
	tl    *itinerary.Timeline
	store Store
}

// Items returns the sorted items.
func (s *Session) Items() []model.TimelineItem { return s.tl.Items() }

// Day returns the items intersecting day's calendar date.
func (s *Session) Day(day time.Time) []model.TimelineItem { return s.tl.Day(day) }

// Get returns an item by ID.
func (s *Session) Get(id string) (model.TimelineItem, bool) { return s.tl.Get(id) }

// Insert adds item to the timeline and persists it. A rejected insert is
// returned as a result with a nil error; err is reserved for store failures,
// after which the in-memory timeline is reloaded from the store.
func (s *Session) Insert(ctx context.Context, item model.TimelineItem) (itinerary.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.tl.Insert(item)
	if !res.OK() || s.store == nil {
		return res, nil
	}
	if err := s.store.Save(ctx, s.ID, item); err != nil {
		s.resync(ctx)
		return res, fmt.Errorf("persist item %s: %w", item.ID, err)
	}
	return res, nil
}

// Remove deletes a mutable item and persists the deletion.
func (s *Session) Remove(ctx context.Context, id string) (itinerary.RemoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.tl.Remove(id)
	if !res.OK() || s.store == nil {
		return res, nil
	}
	if err := s.store.Delete(ctx, s.ID, id); err != nil {
		s.resync(ctx)
		return res, fmt.Errorf("persist removal of %s: %w", id, err)
	}
	return res, nil
}

// ImportBatch merges external calendar items and persists the added ones.
func (s *Session) ImportBatch(ctx context.Context, items []model.TimelineItem) (itinerary.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.tl.ImportBatch(items)
	if len(res.Invalid) > 0 {
		appLog.Warn("import dropped invalid intervals", "session", s.ID, "ids", res.Invalid)
	}
	if err := itinerary.CheckNoOverlap(s.tl.Items()); err != nil {
		appLog.Warn("imported calendar overlaps the timeline", "session", s.ID, "err", err)
	}
	if len(res.Added) == 0 || s.store == nil {
		return res, nil
	}
	if err := s.store.SaveAll(ctx, s.ID, res.Added); err != nil {
		s.resync(ctx)
		return res, fmt.Errorf("persist import: %w", err)
	}
	return res, nil
}

// Clear empties the timeline, immutable items included.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tl.Clear()
	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(ctx, s.ID); err != nil {
		s.resync(ctx)
		return fmt.Errorf("persist clear: %w", err)
	}
	return nil
}

// resync replaces the in-memory timeline with the stored one after a failed
// write. Caller holds s.mu.
func (s *Session) resync(ctx context.Context) {
	items, err := s.store.List(ctx, s.ID)
	if err != nil {
		appLog.Error("session resync failed", err, "session", s.ID)
		return
	}
	s.tl.Reset(items)
}

// Manager hands out sessions, loading each from the store on first use.
type Manager struct {
	store Store

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. A nil store keeps sessions in memory only.
func NewManager(store Store) *Manager {
	return &Manager{store: store, sessions: make(map[string]*Session)}
}

// Get returns the session for id ("" selects DefaultID).
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = DefaultID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	var items []model.TimelineItem
	if m.store != nil {
		var err error
		items, err = m.store.List(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
	}
	s := &Session{ID: id, tl: itinerary.New(items...), store: m.store}
	m.sessions[id] = s
	appLog.Debug("session loaded", "session", id, "items", len(items))
	return s, nil
}

// IDs returns the IDs of the sessions loaded so far, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Forget drops a session from memory; the next Get reloads it.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
