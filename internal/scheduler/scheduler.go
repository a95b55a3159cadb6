// Package scheduler drives the periodic jobs: the reminder tick and the
// weather refresh.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "classboard/internal/log"
	"classboard/internal/model"
)

// Ticker is the reminder engine as seen by the scheduler.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) []model.ReminderEvent
}

// Refresher refreshes a cached resource, e.g. the weather report.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler owns a cron instance. Every job is wrapped in
// SkipIfStillRunning so a slow run is never overlapped by the next one.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	now  func() time.Time
}

// New creates a scheduler evaluating specs in loc. now supplies the tick
// time handed to the reminder engine.
func New(ctx context.Context, loc *time.Location, now func() time.Time) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	logger := appLog.CronLogger()
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c, ctx: ctx, now: now}
}

// AddTicker registers the reminder tick under spec, e.g. "@every 1s".
func (s *Scheduler) AddTicker(spec string, t Ticker) error {
	_, err := s.cron.AddFunc(spec, func() {
		if s.ctx.Err() != nil {
			return
		}
		if evs := t.Tick(s.ctx, s.now()); len(evs) > 0 {
			appLog.Debug("reminder tick", "events", len(evs))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminder tick %q: %w", spec, err)
	}
	return nil
}

// AddRefresher registers r to run every interval. It also runs once
// immediately in the background so the cache is warm at startup.
func (s *Scheduler) AddRefresher(name string, interval time.Duration, r Refresher) error {
	if interval < time.Second {
		interval = time.Second
	}
	job := cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		if err := r.Refresh(s.ctx); err != nil {
			appLog.Error("refresh failed", err, "job", name)
		}
	})
	s.cron.Schedule(cron.Every(interval), job)
	go job.Run()
	appLog.Info("refresh job scheduled", "job", name, "interval", interval.String())
	return nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
