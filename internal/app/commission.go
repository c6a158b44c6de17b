/**
 * @description
 * Referral commission attributor: consumes qualifying-revenue events,
 * activates referrals that reach the activity milestone, accrues a fixed
 * percentage of in-window revenue to the referrer, expires referrals whose
 * window has elapsed, and schedules accrued commission as payout transfers.
 *
 * Attribution is judged by when revenue occurred, not when the event is
 * processed: a late-arriving event for revenue earned before expiry still
 * counts, and an event for revenue earned after the window never does.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
	"github.com/WeAreKoji/getkoji-sub002/internal/store"
)

const (
	accrualEventBatchSize = 100
	payoutReferralLimit   = 50
)

// Attributor computes and schedules referral commissions.
type Attributor struct {
	repo      Repository
	processor Processor
	accounts  AccountChecker
	publisher EventPublisher

	rateBPS           int64
	windowMonths      int
	activationRevenue int64
	currency          string
}

// NewAttributor creates a new commission attributor. rateBPS is the
// commission percentage in basis points (750 = 7.5%); windowMonths bounds the
// commission window from activation; activationRevenue is the lifetime
// qualifying revenue at which a pending referral activates.
func NewAttributor(repo Repository, processor Processor, accounts AccountChecker, publisher EventPublisher, rateBPS int64, windowMonths int, activationRevenue int64, currency string) *Attributor {
	return &Attributor{
		repo:              repo,
		processor:         processor,
		accounts:          accounts,
		publisher:         publisher,
		rateBPS:           rateBPS,
		windowMonths:      windowMonths,
		activationRevenue: activationRevenue,
		currency:          currency,
	}
}

// AccrualResult summarizes one accrual run.
type AccrualResult struct {
	EventsProcessed  int   `json:"events_processed"`
	Activated        int   `json:"activated"`
	CommissionEarned int64 `json:"commission_earned"`
	Expired          int   `json:"expired"`
}

// RunCommissionAccrual executes one scheduled accrual pass.
func (a *Attributor) RunCommissionAccrual(ctx context.Context) (*AccrualResult, error) {
	result := &AccrualResult{}

	events, err := a.repo.ListUnprocessedRevenueEvents(ctx, accrualEventBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list revenue events: %w", err)
	}

	for _, ev := range events {
		if err := a.processRevenueEvent(ctx, ev, result); err != nil {
			// Leave the event unprocessed; the next run picks it up.
			log.Printf("WARN: failed to process revenue event %s: %v", ev.ID, err)
		}
	}

	expired, err := a.repo.ExpireReferrals(ctx, time.Now().UTC(), a.windowMonths)
	if err != nil {
		return result, fmt.Errorf("failed to expire referrals: %w", err)
	}
	result.Expired = len(expired)
	for _, ref := range expired {
		publishEvent(ctx, a.publisher, domain.EventReferralExpired, domain.ReferralEvent{
			ReferralID:        ref.ID,
			ReferrerID:        ref.ReferrerID,
			ReferredCreatorID: ref.ReferredCreatorID,
			Status:            ref.Status,
			TotalCommission:   ref.TotalCommission,
			Timestamp:         time.Now().UTC(),
		})
	}

	return result, nil
}

func (a *Attributor) processRevenueEvent(ctx context.Context, ev domain.RevenueEvent, result *AccrualResult) error {
	ref, err := a.repo.GetReferralByReferredCreatorID(ctx, ev.CreatorID)
	if err != nil {
		if errors.Is(err, store.ErrReferralNotFound) {
			// Creator was not referred; consume the event so it is never
			// re-examined.
			return a.consumeEvent(ctx, ev, result)
		}
		return err
	}

	if ref.Status == domain.ReferralPending {
		activated, err := a.maybeActivate(ctx, ev, ref)
		if err != nil {
			return err
		}
		if activated != nil {
			ref = activated
			result.Activated++
		}
	}

	if commission := a.commissionFor(ref, ev); commission > 0 {
		if err := a.repo.AccrueCommission(ctx, ref.ID, commission); err != nil {
			return err
		}
		result.CommissionEarned += commission
	}

	return a.consumeEvent(ctx, ev, result)
}

// maybeActivate transitions a pending referral to active once the creator's
// lifetime qualifying revenue reaches the milestone. The window starts at the
// occurrence of the revenue that crossed the threshold, so the triggering
// revenue itself falls inside the window. The revenue sum is cut off at the
// event being processed: revenue that occurred later must not pull activation
// back to an earlier event.
func (a *Attributor) maybeActivate(ctx context.Context, ev domain.RevenueEvent, ref *domain.CreatorReferral) (*domain.CreatorReferral, error) {
	total, err := a.repo.LifetimeQualifyingRevenue(ctx, ev.CreatorID, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if total < a.activationRevenue {
		return nil, nil
	}

	activated, err := a.repo.ActivateReferral(ctx, ref.ID, ev.OccurredAt)
	if err != nil {
		return nil, err
	}
	if activated == nil {
		// A concurrent run activated it; reload for the window timestamps.
		return a.repo.GetReferralByReferredCreatorID(ctx, ev.CreatorID)
	}

	publishEvent(ctx, a.publisher, domain.EventReferralActivated, domain.ReferralEvent{
		ReferralID:        activated.ID,
		ReferrerID:        activated.ReferrerID,
		ReferredCreatorID: activated.ReferredCreatorID,
		Status:            activated.Status,
		TotalCommission:   activated.TotalCommission,
		Timestamp:         time.Now().UTC(),
	})
	return activated, nil
}

// commissionFor returns the commission owed for a revenue event, zero when
// the referral has not activated or the revenue occurred outside the window.
func (a *Attributor) commissionFor(ref *domain.CreatorReferral, ev domain.RevenueEvent) int64 {
	if ref.ActivatedAt == nil {
		return 0
	}
	if ev.OccurredAt.Before(*ref.ActivatedAt) {
		return 0
	}
	if !ev.OccurredAt.Before(ref.WindowEnd(a.windowMonths)) {
		return 0
	}
	return ev.Amount * a.rateBPS / 10000
}

func (a *Attributor) consumeEvent(ctx context.Context, ev domain.RevenueEvent, result *AccrualResult) error {
	ok, err := a.repo.MarkRevenueEventProcessed(ctx, ev.ID)
	if err != nil {
		return err
	}
	if ok {
		result.EventsProcessed++
	}
	return nil
}

// PayoutResult summarizes one commission payout run.
type PayoutResult struct {
	Evaluated int   `json:"evaluated"`
	PaidOut   int   `json:"paid_out"`
	Deferred  int   `json:"deferred"`
	Amount    int64 `json:"amount"`
}

// RunCommissionPayouts transfers accrued commission to referrers on the
// platform's normal payout cadence. A failed transfer is recorded as a
// FailedTransfer and handed to the retry engine like any other payout.
func (a *Attributor) RunCommissionPayouts(ctx context.Context) (*PayoutResult, error) {
	refs, err := a.repo.ListReferralsWithUnpaidCommission(ctx, payoutReferralLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid commissions: %w", err)
	}

	result := &PayoutResult{Evaluated: len(refs)}
	for _, ref := range refs {
		amount := ref.UnpaidCommission
		if amount <= 0 {
			continue
		}

		acct, err := a.accounts.RefreshStatus(ctx, ref.ReferrerID)
		if err != nil || !acct.PayoutsEnabled || acct.StripeAccountID == nil {
			// Referrer cannot receive funds yet; keep the balance accrued.
			result.Deferred++
			continue
		}

		claimed, err := a.repo.DeductUnpaidCommission(ctx, ref.ID, amount)
		if err != nil {
			log.Printf("WARN: failed to claim commission payout for referral %s: %v", ref.ID, err)
			continue
		}
		if !claimed {
			// A concurrent payout run claimed this balance.
			continue
		}

		transferID, err := a.processor.CreateTransfer(ctx, *acct.StripeAccountID, amount, a.currency, "Referral commission payout")
		if err != nil {
			// The deducted balance now lives on the failed transfer record.
			ft := &domain.FailedTransfer{
				CreatorID:    ref.ReferrerID,
				Kind:         domain.TransferCommission,
				Amount:       amount,
				Currency:     a.currency,
				ErrorMessage: err.Error(),
			}
			if createErr := a.repo.CreateFailedTransfer(ctx, ft); createErr != nil {
				log.Printf("CRITICAL: commission transfer failed for referral %s and could not be recorded: %v (transfer error: %v)", ref.ID, createErr, err)
			}
			continue
		}

		log.Printf("commission payout submitted: referral=%s referrer=%s amount=%d transfer=%s", ref.ID, ref.ReferrerID, amount, transferID)
		result.PaidOut++
		result.Amount += amount
	}

	return result, nil
}
