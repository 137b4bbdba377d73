package cli

import (
	"context"
	"fmt"
	"time"

	"itincal/internal/candidates"
	"itincal/internal/config"
	"itincal/internal/geo"
	"itincal/internal/ics"
	appLog "itincal/internal/log"
	"itincal/internal/planner"
	"itincal/internal/scheduler"
	"itincal/internal/session"
	"itincal/internal/storage"
	"itincal/internal/web"
)

// app wires the components described by the config.
type app struct {
	cfg        *config.Config
	loc        *time.Location
	db         *storage.DB
	activities *storage.ActivityStore
	sessions   *session.Manager
	planner    *planner.Planner
	importer   *ics.Importer     // nil without ICS sources
	feed       candidates.Source // nil without file/webhook sources
}

func newApp(c *config.Config) (*app, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}

	db, err := storage.OpenAndMigrate(storage.Config{Path: c.Database})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        c,
		loc:        loc,
		db:         db,
		activities: storage.NewActivityStore(db),
		sessions:   session.NewManager(storage.NewItemStore(db)),
		planner: planner.New(
			c.PlannerOptions(),
			geo.NewCalculator(geo.NewCache(c.Planner.GeoCacheSize)),
			nil,
		),
	}

	if len(c.ICS) > 0 {
		feeds := make([]ics.Feed, 0, len(c.ICS))
		for _, s := range c.ICS {
			feeds = append(feeds, ics.Feed{ID: s.SourceID(), URL: s.URL})
		}
		a.importer = ics.NewImporter(ics.NewClient(c.CacheDir), feeds, loc)
	}

	var feeds candidates.Multi
	if c.Candidates.File != "" {
		feeds = append(feeds, candidates.FileSource{Path: c.Candidates.File})
	}
	if c.Candidates.WebhookURL != "" {
		timeout := time.Duration(c.Candidates.WebhookTimeoutSeconds) * time.Second
		feeds = append(feeds, candidates.NewWebhookSource(c.Candidates.WebhookURL, timeout))
	}
	if len(feeds) > 0 {
		a.feed = feeds
	}

	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// refreshPool reloads the activity pool from the configured feeds. A failing
// feed leaves the stored pool in place.
func (a *app) refreshPool(ctx context.Context) {
	if a.feed == nil {
		return
	}
	if _, err := candidates.Refresh(ctx, a.feed, a.activities); err != nil {
		appLog.Warn("candidate refresh failed, using stored pool", "err", err)
	}
}

func (a *app) scheduler() *scheduler.Scheduler {
	s := &scheduler.Scheduler{
		Spec:     a.cfg.RefreshCron,
		Location: a.loc,
		Sessions: a.sessions,
		Pool:     a.activities,
	}
	// Typed nils must not reach the interface fields.
	if a.importer != nil {
		s.Importer = a.importer
	}
	if a.feed != nil {
		s.Candidates = a.feed
	}
	return s
}

func (a *app) server() *web.Server {
	deps := web.Deps{
		Sessions: a.sessions,
		Planner:  a.planner,
		Pool:     a.activities,
		Location: a.loc,
	}
	if a.importer != nil {
		deps.Importer = a.importer
	}
	return web.NewServer(a.cfg, deps)
}

// parseDay reads YYYY-MM-DD or "today" in the configured timezone.
func (a *app) parseDay(v string) (time.Time, error) {
	if v == "" || v == "today" {
		now := time.Now().In(a.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, v, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return d, nil
}

// withApp builds the app for one command run and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}
