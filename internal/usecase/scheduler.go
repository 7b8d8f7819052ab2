package usecase

import (
	"context"
	"log/slog"
	"time"

	"GradePipeline/internal/ports"
)

// BatchRunner grades one assignment.
type BatchRunner func(ctx context.Context, assignmentID string) error

// Scheduler wires the interval driver with recurring batches.
type Scheduler struct {
	driver      ports.Scheduler
	run         BatchRunner
	assignments []string
	logger      *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring batches over the
// given assignments.
func NewScheduler(driver ports.Scheduler, run BatchRunner, assignments []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, run: run, assignments: assignments, logger: logger}
}

// Start registers the batches with the provided scheduler. Assignments run
// one after another on each trigger; a failing assignment does not stop the
// others.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.run == nil || len(s.assignments) == 0 {
		return nil
	}

	job := func(trigger time.Time) {
		for _, id := range s.assignments {
			if ctx.Err() != nil {
				return
			}
			s.logger.Info("scheduled batch", "assignment", id, "trigger", trigger)
			if err := s.run(ctx, id); err != nil {
				s.logger.Error("scheduled batch failed", "assignment", id, "error", err)
			}
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
