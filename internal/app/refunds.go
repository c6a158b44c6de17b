/**
 * @description
 * Refund adjudicator: subscribers submit refund requests against their
 * subscriptions; admins approve or reject them. Approval issues a partial or
 * full reversal against the original charge through the processor.
 *
 * The requested amount is validated against the most recent recorded payment
 * before any processor call. A subscription without a resolvable underlying
 * charge indicates upstream data corruption and is surfaced as a fatal
 * error, never retried or silently dropped.
 */
package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
	"github.com/WeAreKoji/getkoji-sub002/internal/store"
)

// SubmitRefundCommand is a subscriber's refund request.
type SubmitRefundCommand struct {
	SubscriptionID uuid.UUID
	Amount         int64
	Reason         string
}

// Adjudicator handles refund requests.
type Adjudicator struct {
	repo      Repository
	processor Processor
	publisher EventPublisher
}

// NewAdjudicator creates a new refund adjudicator.
func NewAdjudicator(repo Repository, processor Processor, publisher EventPublisher) *Adjudicator {
	return &Adjudicator{repo: repo, processor: processor, publisher: publisher}
}

// Submit creates a pending refund request after validating the amount against
// the original charge. No processor call is made here.
func (a *Adjudicator) Submit(ctx context.Context, userID uuid.UUID, cmd SubmitRefundCommand) (*domain.RefundRequest, error) {
	sub, err := a.repo.GetSubscriptionByID(ctx, cmd.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return nil, ErrNoMatchingSubscription
		}
		return nil, err
	}
	if sub.SubscriberID != userID {
		return nil, ErrNoMatchingSubscription
	}

	payment, err := a.repo.GetLatestPaymentBySubscriptionID(ctx, cmd.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, ErrNoResolvableCharge
		}
		return nil, err
	}

	if cmd.Amount <= 0 {
		return nil, ErrRefundAmountInvalid
	}
	if cmd.Amount > payment.Amount {
		return nil, ErrRefundAmountExceedsCharge
	}

	req := &domain.RefundRequest{
		UserID:         userID,
		SubscriptionID: cmd.SubscriptionID,
		Amount:         cmd.Amount,
		Reason:         cmd.Reason,
		Status:         domain.RefundPending,
	}
	if err := a.repo.CreateRefundRequest(ctx, req); err != nil {
		return nil, err
	}
	return a.repo.GetRefundRequestByID(ctx, req.ID)
}

// ListByUser returns a user's refund requests.
func (a *Adjudicator) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.RefundRequest, error) {
	return a.repo.ListRefundRequestsByUserID(ctx, userID)
}

// Decide records the admin decision on a pending request. Approval resolves
// the original charge from the recorded payment and issues the reversal;
// rejection requires admin notes for audit. A request is decided exactly
// once: the conditional decision update claims the request before any
// processor call, so of two racing approvals only one can reach the
// processor. A claimed approval whose processor call fails is reopened to
// pending rather than left half-decided.
func (a *Adjudicator) Decide(ctx context.Context, requestID uuid.UUID, approve bool, adminNotes string) (*domain.RefundRequest, error) {
	req, err := a.repo.GetRefundRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RefundPending {
		return nil, store.ErrRefundAlreadyDecided
	}

	now := time.Now().UTC()
	notes := strings.TrimSpace(adminNotes)

	if !approve {
		if notes == "" {
			return nil, ErrAdminNotesRequired
		}
		decided, err := a.repo.DecideRefundRequest(ctx, requestID, domain.RefundRejected, nil, &notes, now)
		if err != nil {
			return nil, err
		}
		a.publishDecision(ctx, domain.EventRefundRejected, decided, false)
		return decided, nil
	}

	payment, err := a.repo.GetLatestPaymentBySubscriptionID(ctx, req.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, ErrNoResolvableCharge
		}
		return nil, err
	}
	if payment.StripeChargeID == nil || *payment.StripeChargeID == "" {
		return nil, ErrNoResolvableCharge
	}
	if req.Amount > payment.Amount {
		return nil, ErrRefundAmountExceedsCharge
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	// Claim the decision before touching the processor. The loser of a
	// concurrent approval race stops here with ErrRefundAlreadyDecided.
	if _, err := a.repo.DecideRefundRequest(ctx, requestID, domain.RefundProcessed, nil, notesPtr, now); err != nil {
		return nil, err
	}

	refundID, err := a.processor.CreateRefund(ctx, *payment.StripeChargeID, req.Amount)
	if err != nil {
		if reopenErr := a.repo.ReopenRefundRequest(ctx, requestID); reopenErr != nil {
			log.Printf("CRITICAL: refund request %s claimed but reversal failed and reopen failed too: %v (refund error: %v)", requestID, reopenErr, err)
		}
		return nil, err
	}

	decided, err := a.repo.SetRefundStripeID(ctx, requestID, refundID)
	if err != nil {
		log.Printf("CRITICAL: refund %s issued for request %s but reference could not be recorded: %v", refundID, requestID, err)
		return nil, err
	}

	a.publishDecision(ctx, domain.EventRefundProcessed, decided, true)
	return decided, nil
}

func (a *Adjudicator) publishDecision(ctx context.Context, routingKey string, req *domain.RefundRequest, approved bool) {
	publishEvent(ctx, a.publisher, routingKey, domain.RefundEvent{
		RequestID:      req.ID,
		UserID:         req.UserID,
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		Approved:       approved,
		StripeRefundID: req.StripeRefundID,
		Timestamp:      time.Now().UTC(),
	})
}
