package ics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "itincal/internal/log"
	"itincal/internal/model"
)

// Importer turns the configured feeds into timeline items for one day.
type Importer struct {
	Client   *Client
	Feeds    []Feed
	Location *time.Location
}

// NewImporter creates an Importer cutting days in loc (time.Local if nil).
func NewImporter(c *Client, feeds []Feed, loc *time.Location) *Importer {
	if loc == nil {
		loc = time.Local
	}
	return &Importer{Client: c, Feeds: feeds, Location: loc}
}

// Import returns the timed calendar items meeting day. Feeds that fail to
// download or decode are skipped; the joined error is returned only when no
// feed could be read at all.
func (im *Importer) Import(ctx context.Context, day time.Time) ([]model.TimelineItem, error) {
	if im.Client == nil {
		return nil, errors.New("ics importer: no client configured")
	}
	if len(im.Feeds) == 0 {
		return []model.TimelineItem{}, nil
	}

	w := DayWindow(day, im.Location)
	payloads, fetchErr := im.Client.GetAll(ctx, im.Feeds)
	errs := []error{fetchErr}

	items := []model.TimelineItem{}
	read := 0
	for _, p := range payloads {
		events, err := Decode(p.Feed, p.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", p.Feed.ID, err))
			continue
		}
		read++
		items = append(items, TimelineItems(p.Feed.ID, events, w, im.Location)...)
	}

	err := errors.Join(errs...)
	if read == 0 && err != nil {
		return nil, err
	}
	if err != nil {
		appLog.Warn("ics import partially failed", "day", w.From.Format(time.DateOnly), "err", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Start.Before(items[j].Start)
	})
	appLog.Info("ics import completed",
		"day", w.From.Format(time.DateOnly),
		"feeds", len(im.Feeds),
		"read", read,
		"items", len(items),
	)
	return items, nil
}
