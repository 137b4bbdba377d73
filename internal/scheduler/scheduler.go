// Package scheduler periodically imports the external calendar into the
// default session and refreshes the candidate pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"itincal/internal/candidates"
	"itincal/internal/itinerary"
	appLog "itincal/internal/log"
	"itincal/internal/model"
	"itincal/internal/session"
)

// Importer pulls the external calendar items of one day.
type Importer interface {
	Import(ctx context.Context, day time.Time) ([]model.TimelineItem, error)
}

// Scheduler runs the refresh job on a cron spec.
type Scheduler struct {
	Spec     string
	Location *time.Location
	Importer Importer
	Sessions *session.Manager
	// SessionID receives imports; session.DefaultID when empty.
	SessionID string

	// Candidates and Pool are optional; when both are set every run also
	// reloads the activity pool.
	Candidates candidates.Source
	Pool       candidates.Store

	Now func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// Result summarizes one run.
type Result struct {
	Day        time.Time
	Import     itinerary.ImportResult
	Activities int
}

// RunOnce imports today's calendar into the session and refreshes the pool.
// Both steps run even if one fails; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	day := now().In(loc)
	res := Result{Day: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)}

	var errs []error

	if s.Importer != nil && s.Sessions != nil {
		sess, err := s.Sessions.Get(ctx, s.SessionID)
		if err != nil {
			errs = append(errs, err)
		} else if items, err := s.Importer.Import(ctx, res.Day); err != nil {
			errs = append(errs, fmt.Errorf("import: %w", err))
		} else {
			res.Import, err = sess.ImportBatch(ctx, items)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s.Candidates != nil && s.Pool != nil {
		n, err := candidates.Refresh(ctx, s.Candidates, s.Pool)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh candidates: %w", err))
		}
		res.Activities = n
	}

	err := errors.Join(errs...)
	if err != nil {
		appLog.Error("scheduled refresh failed", err, "day", res.Day.Format(time.DateOnly))
	} else {
		appLog.Info("scheduled refresh done",
			"day", res.Day.Format(time.DateOnly),
			"added", len(res.Import.Added),
			"skipped", len(res.Import.Skipped),
			"invalid", len(res.Import.Invalid),
			"activities", res.Activities,
		)
	}
	return res, err
}

// Start registers the job and runs it in the background until ctx is
// cancelled. Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.Spec, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.Spec, err)
	}
	c.Start()
	s.cron = c
	appLog.Info("scheduler started", "spec", s.Spec, "timezone", loc.String())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	appLog.Info("scheduler stopped")
}

// Next returns the next planned run, or the zero time when not started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's own messages to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
