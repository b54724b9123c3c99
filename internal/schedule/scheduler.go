// Package schedule runs the daily job from a long-lived process, for hosts
// without an EventBridge rule.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultCron fires once a day at 02:00 UTC, after the previous day's
// partition is complete.
const DefaultCron = "0 2 * * *"

type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	// A run still in progress is never overlapped by the next tick.
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
	}
}

// Daily registers job under tag on cronExpr (DefaultCron when empty). Job
// errors are logged; the schedule keeps going.
func (s *Scheduler) Daily(tag, cronExpr string, job func(ctx context.Context) error) error {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	_, err := s.scheduler.Cron(cronExpr).Tag(tag).Do(func() {
		s.logger.Info("scheduled run starting", "tag", tag)
		if err := job(context.Background()); err != nil {
			s.logger.Error("scheduled run failed", "tag", tag, "err", err)
			return
		}
		s.logger.Info("scheduled run finished", "tag", tag)
	})
	return err
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// NextRun is the next time tag fires.
func (s *Scheduler) NextRun(tag string) (time.Time, bool) {
	jobs, err := s.scheduler.FindJobsByTag(tag)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}

// Run blocks until ctx is done, then stops the scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	s.scheduler.StartAsync()
	<-ctx.Done()
	s.scheduler.Stop()
}
