// Package scheduler runs the note import periodically.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Syncer imports every configured source.
type Syncer interface {
	RunSync(ctx context.Context) error
}

// Scheduler manages the periodic import job.
type Scheduler struct {
	cron   *gocron.Scheduler
	syncer Syncer
}

// New creates a scheduler whose jobs run in loc.
func New(loc *time.Location, syncer Syncer) *Scheduler {
	return &Scheduler{
		cron:   gocron.NewScheduler(loc),
		syncer: syncer,
	}
}

// Start runs an import now and then every interval until ctx is done or Stop
// is called. A run still in progress when the next one is due is not
// overlapped.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	_, err := s.cron.Every(interval).SingletonMode().Do(s.runSync, ctx)
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	s.cron.StartAsync()
	slog.InfoContext(ctx, "scheduled source sync", "interval", interval)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop terminates the scheduled job. It is safe to call more than once.
func (s *Scheduler) Stop() {
	if s.cron.IsRunning() {
		s.cron.Stop()
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.syncer.RunSync(ctx); err != nil {
		slog.ErrorContext(ctx, "scheduled sync failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "scheduled sync finished", "duration", time.Since(start))
}
