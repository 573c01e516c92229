// Package scheduler fires pipeline runs for scheduled queries stored in the
// database, polling for due entries the way a cron daemon would.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/swarmopt/swarmopt/internal/config"
	"github.com/swarmopt/swarmopt/internal/schedule"
	"github.com/swarmopt/swarmopt/internal/store"
)

// PipelineRunner is the scheduler's view of the pipeline controller.
type PipelineRunner interface {
	RunQuery(ctx context.Context, query string) (success bool, runID string, errMsg string)
}

type Scheduler struct {
	store        *store.Store
	runner       PipelineRunner
	pollInterval time.Duration
}

func New(s *store.Store, runner PipelineRunner, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		runner:       runner,
		pollInterval: cfg.PollInterval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	due, err := s.store.DueScheduledQueries(time.Now())
	if err != nil {
		slog.Error("scheduler poll failed", "error", err)
		return
	}

	for _, q := range due {
		s.fire(ctx, q)
	}
}

func (s *Scheduler) fire(ctx context.Context, q store.ScheduledQuery) {
	slog.Info("firing scheduled query", "id", q.ID, "name", q.Name)

	success, runID, errMsg := s.runner.RunQuery(ctx, q.Query)

	lastStatus := "completed"
	if !success {
		lastStatus = "failed"
	}

	next := schedule.NextRun(q.Schedule)
	if err := s.store.MarkScheduledQueryRun(q.ID, lastStatus, errMsg, next); err != nil {
		slog.Error("record scheduled run failed", "id", q.ID, "error", err)
	}

	slog.Info("scheduled query finished",
		"id", q.ID, "run", runID, "status", lastStatus, "next_run", next)
}
