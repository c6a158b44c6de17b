/**
 * @description
 * Cron scheduler setup for the retry engine and commission attributor.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/WeAreKoji/getkoji-sub002/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.TransferRetrySchedule, s.jobs.ProcessTransferRetries); err != nil {
		s.logger.Error("failed to schedule transfer retry job", "error", err)
	} else {
		s.logger.Info("scheduled transfer retry job", "schedule", s.config.TransferRetrySchedule)
	}

	if _, err := s.cron.AddFunc(s.config.CommissionAccrualSchedule, s.jobs.ProcessCommissionAccrual); err != nil {
		s.logger.Error("failed to schedule commission accrual job", "error", err)
	} else {
		s.logger.Info("scheduled commission accrual job", "schedule", s.config.CommissionAccrualSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.CommissionPayoutSchedule, s.jobs.ProcessCommissionPayouts); err != nil {
		s.logger.Error("failed to schedule commission payout job", "error", err)
	} else {
		s.logger.Info("scheduled commission payout job", "schedule", s.config.CommissionPayoutSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
