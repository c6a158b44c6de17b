/**
 * @description
 * Subscription state machine: drives a subscriber-to-creator subscription
 * through price changes, pauses, resumes, and cancellation.
 *
 * Allowed transitions:
 *   active  -> paused | canceled(flagged) | past_due
 *   paused  -> active | canceled(flagged)
 *   past_due-> active | canceled(flagged)   (payment retry happens upstream)
 *   canceled is terminal
 *
 * Each lifecycle action is its own command type with construction-time
 * validation, so an illegal transition is rejected before anything is
 * mutated. The processor is always updated first; the local record is only
 * authoritative after the processor confirms.
 */
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
	"github.com/WeAreKoji/getkoji-sub002/internal/store"
)

// ChangePriceCommand requests a price change on an active subscription.
type ChangePriceCommand struct {
	SubscriptionID uuid.UUID
	NewPriceID     string
}

// PauseCommand requests a billing pause until ResumeAt.
type PauseCommand struct {
	SubscriptionID uuid.UUID
	ResumeAt       time.Time
}

// Validate rejects a resume target that is not in the future.
func (c PauseCommand) Validate(now time.Time) error {
	if !c.ResumeAt.After(now) {
		return ErrResumeTimeNotFuture
	}
	return nil
}

// ResumeCommand requests an immediate resume of a paused subscription.
type ResumeCommand struct {
	SubscriptionID uuid.UUID
}

// CancelCommand requests cancellation at the end of the current billing
// period.
type CancelCommand struct {
	SubscriptionID uuid.UUID
}

// Lifecycle is the subscription state machine service.
type Lifecycle struct {
	repo      Repository
	processor Processor
	publisher EventPublisher
}

// NewLifecycle creates a new subscription lifecycle service.
func NewLifecycle(repo Repository, processor Processor, publisher EventPublisher) *Lifecycle {
	return &Lifecycle{repo: repo, processor: processor, publisher: publisher}
}

// Get returns a subscription owned by the subscriber.
func (l *Lifecycle) Get(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	return l.loadOwned(ctx, subscriberID, subscriptionID)
}

// ListBySubscriber returns all of a subscriber's subscriptions.
func (l *Lifecycle) ListBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	return l.repo.ListSubscriptionsBySubscriberID(ctx, subscriberID)
}

// ChangePrice applies a price change to an active subscription. Proration is
// delegated to the processor; this service only records the confirmed state.
func (l *Lifecycle) ChangePrice(ctx context.Context, subscriberID uuid.UUID, cmd ChangePriceCommand) (*domain.Subscription, error) {
	sub, err := l.loadOwned(ctx, subscriberID, cmd.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, ErrNoMatchingSubscription
	}
	ref, err := l.processorRef(sub)
	if err != nil {
		return nil, err
	}

	if err := l.processor.ChangeSubscriptionPrice(ctx, ref, cmd.NewPriceID); err != nil {
		return nil, err
	}

	updated, err := l.repo.UpdateSubscriptionPrice(ctx, cmd.SubscriptionID, cmd.NewPriceID)
	if err != nil {
		return nil, l.mapPostProcessorErr(cmd.SubscriptionID, "price change", err)
	}

	l.publishTransition(ctx, domain.EventSubscriptionPriceChanged, updated)
	return updated, nil
}

// Pause suspends billing on an active subscription until cmd.ResumeAt.
func (l *Lifecycle) Pause(ctx context.Context, subscriberID uuid.UUID, cmd PauseCommand) (*domain.Subscription, error) {
	if err := cmd.Validate(time.Now().UTC()); err != nil {
		return nil, err
	}

	sub, err := l.loadOwned(ctx, subscriberID, cmd.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, ErrNoMatchingSubscription
	}
	ref, err := l.processorRef(sub)
	if err != nil {
		return nil, err
	}

	if err := l.processor.PauseSubscription(ctx, ref, cmd.ResumeAt); err != nil {
		return nil, err
	}

	updated, err := l.repo.PauseSubscription(ctx, cmd.SubscriptionID, cmd.ResumeAt)
	if err != nil {
		return nil, l.mapPostProcessorErr(cmd.SubscriptionID, "pause", err)
	}

	l.publishTransition(ctx, domain.EventSubscriptionPaused, updated)
	return updated, nil
}

// Resume restarts billing on a paused subscription immediately, regardless of
// the originally scheduled resume target.
func (l *Lifecycle) Resume(ctx context.Context, subscriberID uuid.UUID, cmd ResumeCommand) (*domain.Subscription, error) {
	sub, err := l.loadOwned(ctx, subscriberID, cmd.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionPaused {
		return nil, ErrNoMatchingSubscription
	}
	ref, err := l.processorRef(sub)
	if err != nil {
		return nil, err
	}

	if err := l.processor.ResumeSubscription(ctx, ref); err != nil {
		return nil, err
	}

	updated, err := l.repo.ResumeSubscription(ctx, cmd.SubscriptionID)
	if err != nil {
		return nil, l.mapPostProcessorErr(cmd.SubscriptionID, "resume", err)
	}

	l.publishTransition(ctx, domain.EventSubscriptionResumed, updated)
	return updated, nil
}

// Cancel schedules cancellation at the end of the current billing period.
// Cancellation is never immediate: the subscriber keeps the access they have
// already paid for. This is policy, not a default.
func (l *Lifecycle) Cancel(ctx context.Context, subscriberID uuid.UUID, cmd CancelCommand) (*domain.Subscription, error) {
	sub, err := l.loadOwned(ctx, subscriberID, cmd.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, ErrNoMatchingSubscription
	}
	ref, err := l.processorRef(sub)
	if err != nil {
		return nil, err
	}

	if err := l.processor.CancelSubscriptionAtPeriodEnd(ctx, ref); err != nil {
		return nil, err
	}

	updated, err := l.repo.MarkSubscriptionCancelAtPeriodEnd(ctx, cmd.SubscriptionID)
	if err != nil {
		return nil, l.mapPostProcessorErr(cmd.SubscriptionID, "cancel", err)
	}

	l.publishTransition(ctx, domain.EventSubscriptionCanceled, updated)
	return updated, nil
}

func (l *Lifecycle) loadOwned(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	sub, err := l.repo.GetSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return nil, l.mapStoreErr(err)
	}
	if sub.SubscriberID != subscriberID {
		return nil, ErrNoMatchingSubscription
	}
	return sub, nil
}

// processorRef extracts the external subscription reference. A record without
// one is a data-integrity violation and must reach an operator.
func (l *Lifecycle) processorRef(sub *domain.Subscription) (string, error) {
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" {
		return "", ErrMissingProcessorRef
	}
	return *sub.StripeSubscriptionID, nil
}

func (l *Lifecycle) mapStoreErr(err error) error {
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		return ErrNoMatchingSubscription
	}
	return err
}

// mapPostProcessorErr handles a local-update failure after the processor has
// already confirmed the transition. A zero-row conditional update here means
// the local record diverged from processor state mid-call, which must reach
// an operator.
func (l *Lifecycle) mapPostProcessorErr(subscriptionID uuid.UUID, op string, err error) error {
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		log.Printf("CRITICAL: subscription %s %s confirmed at the processor but the local record no longer matched: %v", subscriptionID, op, err)
		return ErrNoMatchingSubscription
	}
	return err
}

func (l *Lifecycle) publishTransition(ctx context.Context, routingKey string, sub *domain.Subscription) {
	publishEvent(ctx, l.publisher, routingKey, domain.SubscriptionEvent{
		SubscriptionID: sub.ID,
		SubscriberID:   sub.SubscriberID,
		CreatorID:      sub.CreatorID,
		Status:         sub.Status,
		PauseUntil:     sub.PauseUntil,
		PriceID:        sub.StripePriceID,
		Timestamp:      time.Now().UTC(),
	})
}
