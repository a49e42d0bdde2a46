// Package scheduler drives the periodic background work: scoring view
// refreshes and the country dictionary sync.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/jobs"
	"github.com/reelmatch/reelmatch/internal/scoring"
)

// Scheduler owns the cron loop. Refreshes go through the job queue so they
// deduplicate against refreshes chained from imports; the country sync is
// cheap and runs in-process.
type Scheduler struct {
	cron  *cron.Cron
	queue *jobs.Queue
	view  *scoring.View
	log   *zap.SugaredLogger
}

func New(queue *jobs.Queue, view *scoring.View, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{cron: cron.New(), queue: queue, view: view, log: log}
}

// Start registers the schedules and begins the loop. refreshSpec is a cron
// expression (robfig syntax, e.g. "@every 15m").
func (s *Scheduler) Start(refreshSpec string) error {
	if _, err := s.cron.AddFunc(refreshSpec, s.enqueueRefresh); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@daily", s.syncCountries); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Infow("scheduler started", "refresh", refreshSpec)
	return nil
}

// Stop halts scheduling and waits for running entries.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) enqueueRefresh() {
	_, err := s.queue.EnqueueUnique(jobs.TaskScoringRefresh,
		jobs.RefreshPayload{Concurrently: true}, "scoring:refresh")
	if err != nil {
		s.log.Errorw("enqueue scheduled refresh", "error", err)
	}
}

func (s *Scheduler) syncCountries() {
	if err := s.view.SyncCountries(context.Background()); err != nil {
		s.log.Errorw("country dictionary sync", "error", err)
	}
}
