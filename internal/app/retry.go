/**
 * @description
 * Transfer retry engine: re-attempts failed payout transfers on a bounded
 * schedule. Runs are driven by the cron scheduler, never by user action, so
 * retry behavior stays deterministic and testable.
 *
 * Per run: select the oldest unresolved transfers under the retry cap,
 * re-check the payee's payout enablement (skipping without burning an attempt
 * when still disabled), claim each attempt with a conditional update, and
 * submit the transfer. Rows are processed strictly sequentially, so two
 * transfers for the same creator can never race within a run; the claim makes
 * overlapping runs safe too.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
)

// AccountChecker is the slice of the payout account connector the retry
// engine needs: a fresh, processor-confirmed view of payout enablement.
type AccountChecker interface {
	RefreshStatus(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error)
}

// RetryEngine re-attempts failed payout transfers.
type RetryEngine struct {
	repo      Repository
	processor Processor
	accounts  AccountChecker
	publisher EventPublisher

	maxAttempts int
	batchSize   int
}

// NewRetryEngine creates a new retry engine. maxAttempts caps retries per
// transfer; batchSize bounds how many transfers one run touches.
func NewRetryEngine(repo Repository, processor Processor, accounts AccountChecker, publisher EventPublisher, maxAttempts, batchSize int) *RetryEngine {
	return &RetryEngine{
		repo:        repo,
		processor:   processor,
		accounts:    accounts,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
	}
}

// RetryBatchResult summarizes one retry run.
type RetryBatchResult struct {
	Evaluated int `json:"evaluated"`
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunRetryBatch executes one scheduled retry pass.
func (e *RetryEngine) RunRetryBatch(ctx context.Context) (*RetryBatchResult, error) {
	batchStart := time.Now().UTC()

	transfers, err := e.repo.ListRetryableTransfers(ctx, e.maxAttempts, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select retryable transfers: %w", err)
	}

	result := &RetryBatchResult{Evaluated: len(transfers)}
	for _, ft := range transfers {
		outcome := e.retryTransfer(ctx, ft, batchStart)
		switch outcome {
		case retrySkipped:
			result.Skipped++
		case retryResolved:
			result.Attempted++
			result.Resolved++
		case retryFailed:
			result.Attempted++
			result.Failed++
		}
	}

	return result, nil
}

// retryCooldown is the minimum spacing between attempts on one transfer. It
// is what makes overlapping scheduled runs lose the claim instead of
// double-submitting.
const retryCooldown = 2 * time.Minute

type retryOutcome int

const (
	retrySkipped retryOutcome = iota
	retryResolved
	retryFailed
)

func (e *RetryEngine) retryTransfer(ctx context.Context, ft domain.FailedTransfer, batchStart time.Time) retryOutcome {
	// Precondition re-check first: a disabled payout account must not burn a
	// retry attempt.
	acct, err := e.accounts.RefreshStatus(ctx, ft.CreatorID)
	if err != nil {
		if !errors.Is(err, ErrPayoutAccountNotConnected) {
			log.Printf("WARN: could not refresh payout account for creator %s: %v", ft.CreatorID, err)
		}
		return retrySkipped
	}
	if !acct.PayoutsEnabled || acct.StripeAccountID == nil {
		return retrySkipped
	}

	claimed, err := e.repo.ClaimTransferAttempt(ctx, ft.ID, e.maxAttempts, batchStart, batchStart.Add(-retryCooldown))
	if err != nil {
		log.Printf("WARN: failed to claim transfer attempt %s: %v", ft.ID, err)
		return retrySkipped
	}
	if claimed == nil {
		// Lost to a concurrent run, or resolved meanwhile. No state change.
		return retrySkipped
	}

	description := fmt.Sprintf("Creator payout retry (%s)", claimed.Kind)
	transferID, err := e.processor.CreateTransfer(ctx, *acct.StripeAccountID, claimed.Amount, claimed.Currency, description)
	if err != nil {
		e.recordFailure(ctx, claimed, err)
		return retryFailed
	}

	resolvedAt := time.Now().UTC()
	resolved, err := e.repo.ResolveTransfer(ctx, claimed.ID, transferID, resolvedAt)
	if err != nil {
		log.Printf("CRITICAL: transfer %s submitted as %s but could not be marked resolved: %v", claimed.ID, transferID, err)
		return retryFailed
	}
	if resolved != nil {
		publishEvent(ctx, e.publisher, domain.EventTransferResolved, domain.TransferEvent{
			TransferID:       resolved.ID,
			CreatorID:        resolved.CreatorID,
			Kind:             resolved.Kind,
			Amount:           resolved.Amount,
			Currency:         resolved.Currency,
			RetryCount:       resolved.RetryCount,
			StripeTransferID: resolved.StripeTransferID,
			Timestamp:        resolvedAt,
		})
	}
	return retryResolved
}

func (e *RetryEngine) recordFailure(ctx context.Context, ft *domain.FailedTransfer, transferErr error) {
	updated, err := e.repo.RecordTransferFailure(ctx, ft.ID, transferErr.Error())
	if err != nil {
		log.Printf("WARN: failed to record transfer failure %s: %v", ft.ID, err)
		return
	}

	if updated.RetryCount >= e.maxAttempts {
		// Exhausted: the row stays unresolved and leaves the retry pool.
		// Operators take it from here.
		msg := updated.ErrorMessage
		publishEvent(ctx, e.publisher, domain.EventTransferExhausted, domain.TransferEvent{
			TransferID:   updated.ID,
			CreatorID:    updated.CreatorID,
			Kind:         updated.Kind,
			Amount:       updated.Amount,
			Currency:     updated.Currency,
			RetryCount:   updated.RetryCount,
			ErrorMessage: &msg,
			Timestamp:    time.Now().UTC(),
		})
	}
}
