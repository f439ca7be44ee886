package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the sweep on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	log      *slog.Logger
	schedule string
}

func New(jobs *Jobs, schedule string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{cron: c, jobs: jobs, log: log, schedule: schedule}
}

// Start registers the sweep and starts the cron loop. A bad schedule is fatal.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.Sweep); err != nil {
		s.log.Error("failed to schedule sweep", "schedule", s.schedule, "err", err)
		return err
	}
	s.log.Info("scheduled sweep", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops scheduling; the returned context is done once a running sweep finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
