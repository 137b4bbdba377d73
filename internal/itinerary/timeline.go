// Package itinerary holds the traveler's scheduled items and enforces that
// no two of them overlap.
package itinerary

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"itincal/internal/model"
)

var (
	ErrOverlap         = errors.New("item overlaps existing item")
	ErrDuplicate       = errors.New("item already scheduled")
	ErrImmutable       = errors.New("item is immutable")
	ErrNotFound        = errors.New("item not found")
	ErrInvalidInterval = model.ErrInvalidInterval
)

// Reason classifies a rejected mutation.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonOverlap           Reason = "overlap"
	ReasonDuplicateID       Reason = "duplicate-id"
	ReasonDuplicateActivity Reason = "duplicate-activity"
	ReasonInvalidInterval   Reason = "invalid-interval"
	ReasonImmutable         Reason = "immutable"
	ReasonNotFound          Reason = "not-found"
)

// InsertResult is the outcome of Timeline.Insert. A zero Reason means the
// item was added.
type InsertResult struct {
	Item      model.TimelineItem
	Reason    Reason
	Conflicts []model.TimelineItem
}

func (r InsertResult) OK() bool { return r.Reason == ReasonNone }

// ConflictTitles lists the titles of the items blocking an insert.
func (r InsertResult) ConflictTitles() []string {
	titles := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		titles = append(titles, c.Title)
	}
	return titles
}

// Err converts a rejection into an error wrapping one of the package
// sentinels, or nil on success.
func (r InsertResult) Err() error {
	switch r.Reason {
	case ReasonNone:
		return nil
	case ReasonOverlap:
		return fmt.Errorf("%w: conflicts with %s", ErrOverlap, strings.Join(r.ConflictTitles(), ", "))
	case ReasonDuplicateID:
		return fmt.Errorf("%w: id %q", ErrDuplicate, r.Item.ID)
	case ReasonDuplicateActivity:
		return fmt.Errorf("%w: activity %q (%s)", ErrDuplicate, r.Item.ActivityID, r.Item.Provenance)
	case ReasonInvalidInterval:
		return r.Item.Validate()
	default:
		return fmt.Errorf("insert rejected: %s", r.Reason)
	}
}

// RemoveResult is the outcome of Timeline.Remove.
type RemoveResult struct {
	ID     string
	Item   model.TimelineItem
	Reason Reason
}

func (r RemoveResult) OK() bool { return r.Reason == ReasonNone }

func (r RemoveResult) Err() error {
	switch r.Reason {
	case ReasonNone:
		return nil
	case ReasonImmutable:
		return fmt.Errorf("%w: %q cannot be removed", ErrImmutable, r.Item.Title)
	case ReasonNotFound:
		return fmt.Errorf("%w: %q", ErrNotFound, r.ID)
	default:
		return fmt.Errorf("remove rejected: %s", r.Reason)
	}
}

// ImportResult lists which imported items were added and which were skipped
// because an item with the same ID already existed.
type ImportResult struct {
	Added   []model.TimelineItem
	Skipped []string
	// Invalid holds IDs dropped because End did not follow Start.
	Invalid []string
}

// Timeline is the ordered set of scheduled items for one traveler. All
// methods are safe for concurrent use; every mutation either fully applies
// or leaves the timeline untouched.
type Timeline struct {
	mu    sync.RWMutex
	items []model.TimelineItem
}

// New returns a timeline seeded with items. Seeded items bypass validation;
// they are expected to come from a store that only ever saw validated items.
func New(items ...model.TimelineItem) *Timeline {
	t := &Timeline{items: append([]model.TimelineItem(nil), items...)}
	sortItems(t.items)
	return t
}

// Items returns a sorted copy of the scheduled items.
func (t *Timeline) Items() []model.TimelineItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.TimelineItem(nil), t.items...)
}

// Len returns the number of scheduled items.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Get looks up an item by ID.
func (t *Timeline) Get(id string) (model.TimelineItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexOf(id); i >= 0 {
		return t.items[i], true
	}
	return model.TimelineItem{}, false
}

// Day returns the items intersecting the calendar day containing day, in
// day's location.
func (t *Timeline) Day(day time.Time) []model.TimelineItem {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)
	return t.Between(from, to)
}

// Between returns the items intersecting [from, to).
func (t *Timeline) Between(from, to time.Time) []model.TimelineItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Conflicts(t.items, from, to)
}

// Insert validates item against the current items and adds it. Rejections
// leave the timeline unchanged.
func (t *Timeline) Insert(item model.TimelineItem) InsertResult {
	if err := item.Validate(); err != nil {
		return InsertResult{Item: item, Reason: ReasonInvalidInterval}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, it := range t.items {
		if it.ID == item.ID {
			return InsertResult{Item: item, Reason: ReasonDuplicateID, Conflicts: []model.TimelineItem{it}}
		}
		if item.ActivityID != "" && it.ActivityID == item.ActivityID && it.Provenance == item.Provenance {
			return InsertResult{Item: item, Reason: ReasonDuplicateActivity, Conflicts: []model.TimelineItem{it}}
		}
	}

	if conflicts := Conflicts(t.items, item.Start, item.End); len(conflicts) > 0 {
		return InsertResult{Item: item, Reason: ReasonOverlap, Conflicts: conflicts}
	}

	t.items = append(t.items, item)
	sortItems(t.items)
	return InsertResult{Item: item}
}

// Remove deletes the item with the given ID unless it is immutable.
func (t *Timeline) Remove(id string) RemoveResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(id)
	if i < 0 {
		return RemoveResult{ID: id, Reason: ReasonNotFound}
	}
	it := t.items[i]
	if it.Immutable {
		return RemoveResult{ID: id, Item: it, Reason: ReasonImmutable}
	}

	t.items = append(t.items[:i], t.items[i+1:]...)
	return RemoveResult{ID: id, Item: it}
}

// ImportBatch merges externally sourced items. Every incoming item is marked
// immutable and tagged as external-calendar. Items whose ID already exists
// are skipped (the existing item wins). Imported items are not checked for
// overlap: the external calendar is authoritative and dropping events would
// lose real commitments.
func (t *Timeline) ImportBatch(items []model.TimelineItem) ImportResult {
	var res ImportResult

	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{}, len(t.items)+len(items))
	for _, it := range t.items {
		seen[it.ID] = struct{}{}
	}

	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			res.Skipped = append(res.Skipped, it.ID)
			continue
		}
		if it.Validate() != nil {
			res.Invalid = append(res.Invalid, it.ID)
			continue
		}
		it.Provenance = model.ProvenanceExternalCalendar
		it.Immutable = true
		seen[it.ID] = struct{}{}
		t.items = append(t.items, it)
		res.Added = append(res.Added, it)
	}

	sortItems(t.items)
	return res
}

// Clear removes every item, immutable ones included.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = nil
}

// Reset replaces the content with items without validation, for reloading
// from a store that only ever saw validated items.
func (t *Timeline) Reset(items []model.TimelineItem) {
	cp := append([]model.TimelineItem(nil), items...)
	sortItems(cp)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = cp
}

func (t *Timeline) indexOf(id string) int {
	for i, it := range t.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// sortItems orders by start, then end, then ID so ordering is deterministic.
func sortItems(items []model.TimelineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.ID < b.ID
	})
}
