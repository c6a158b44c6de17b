/**
 * @description
 * Scheduled job implementations. Each job takes the named lock, runs its
 * service pass, and logs a summary. Scheduling is at-least-once: the
 * underlying passes are idempotent, so a duplicate run is wasted work at
 * worst.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	retry      *RetryEngine
	attributor *Attributor
	lock       JobLock
	logger     *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(retry *RetryEngine, attributor *Attributor, lock JobLock, logger *slog.Logger) *Jobs {
	return &Jobs{retry: retry, attributor: attributor, lock: lock, logger: logger}
}

// ProcessTransferRetries runs one transfer retry batch.
func (j *Jobs) ProcessTransferRetries() {
	ctx := context.Background()

	release, ok := j.lock.Acquire(ctx, "transfer_retries", 4*time.Minute)
	if !ok {
		j.logger.Info("transfer retry job already running elsewhere, skipping")
		return
	}
	defer release()

	j.logger.Info("starting transfer retry job")
	result, err := j.retry.RunRetryBatch(ctx)
	if err != nil {
		j.logger.Error("transfer retry job failed", "error", err)
		return
	}
	j.logger.Info("transfer retry job finished",
		"evaluated", result.Evaluated,
		"attempted", result.Attempted,
		"resolved", result.Resolved,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
}

// ProcessCommissionAccrual runs one commission accrual pass.
func (j *Jobs) ProcessCommissionAccrual() {
	ctx := context.Background()

	release, ok := j.lock.Acquire(ctx, "commission_accrual", 8*time.Minute)
	if !ok {
		j.logger.Info("commission accrual job already running elsewhere, skipping")
		return
	}
	defer release()

	j.logger.Info("starting commission accrual job")
	result, err := j.attributor.RunCommissionAccrual(ctx)
	if err != nil {
		j.logger.Error("commission accrual job failed", "error", err)
		return
	}
	j.logger.Info("commission accrual job finished",
		"events_processed", result.EventsProcessed,
		"activated", result.Activated,
		"commission_earned", result.CommissionEarned,
		"expired", result.Expired,
	)
}

// ProcessCommissionPayouts runs one commission payout pass.
func (j *Jobs) ProcessCommissionPayouts() {
	ctx := context.Background()

	release, ok := j.lock.Acquire(ctx, "commission_payouts", 10*time.Minute)
	if !ok {
		j.logger.Info("commission payout job already running elsewhere, skipping")
		return
	}
	defer release()

	j.logger.Info("starting commission payout job")
	result, err := j.attributor.RunCommissionPayouts(ctx)
	if err != nil {
		j.logger.Error("commission payout job failed", "error", err)
		return
	}
	j.logger.Info("commission payout job finished",
		"evaluated", result.Evaluated,
		"paid_out", result.PaidOut,
		"deferred", result.Deferred,
		"amount", result.Amount,
	)
}
