/**
 * @description
 * Shared contracts for the payout service's application layer. The interfaces
 * here are what the five components consume: the database repository, the
 * payment processor, and the event publisher. Defining them on the consumer
 * side decouples the business logic from pgx, Stripe, and RabbitMQ and lets
 * tests substitute handwritten stubs.
 *
 * Error taxonomy:
 * - Precondition errors (ErrNoMatchingSubscription, ErrResumeTimeNotFuture,
 *   ErrRefundAmountExceedsCharge, ...) are returned synchronously and never
 *   retried.
 * - Transient processor errors carry a retryable flag (see pkg/stripeclient);
 *   user-initiated actions surface them to the caller, background transfers
 *   go through the retry engine's bounded policy.
 * - Fatal data-integrity errors (ErrMissingProcessorRef,
 *   ErrNoResolvableCharge) indicate upstream corruption and are surfaced to
 *   operators, never silently dropped.
 */
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
	"github.com/WeAreKoji/getkoji-sub002/pkg/rabbitmq"
	"github.com/WeAreKoji/getkoji-sub002/pkg/stripeclient"
)

var (
	// ErrPayoutAccountNotConnected means the creator has never completed (or
	// started) payout onboarding. This is a normal state, not corruption.
	ErrPayoutAccountNotConnected = errors.New("payout account not connected")

	// ErrNoMatchingSubscription means no subscription exists in a state
	// compatible with the requested transition for this subscriber.
	ErrNoMatchingSubscription = errors.New("no matching active subscription")

	// ErrMissingProcessorRef means a local record lacks its external
	// reference. This should never occur in normal operation and is surfaced
	// rather than silently ignored.
	ErrMissingProcessorRef = errors.New("subscription record missing external reference")

	// ErrNoResolvableCharge means a refund cannot be tied to an underlying
	// charge, which indicates upstream data corruption.
	ErrNoResolvableCharge = errors.New("no resolvable charge for subscription")

	ErrResumeTimeNotFuture       = errors.New("resume time must be in the future")
	ErrRefundAmountExceedsCharge = errors.New("refund amount exceeds the original charge")
	ErrRefundAmountInvalid       = errors.New("refund amount must be positive")
	ErrAdminNotesRequired        = errors.New("admin notes are required when rejecting")
)

// Repository defines the database operations the application layer needs.
type Repository interface {
	// Payout accounts
	GetPayoutAccountByCreatorID(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error)
	EnsurePayoutAccount(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error)
	SetPayoutAccountStripeID(ctx context.Context, creatorID uuid.UUID, stripeAccountID string) (*domain.CreatorPayoutAccount, error)
	UpdatePayoutAccountFlags(ctx context.Context, creatorID uuid.UUID, onboardingComplete, payoutsEnabled, chargesEnabled bool) (*domain.CreatorPayoutAccount, error)

	// Subscriptions
	GetSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	ListSubscriptionsBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, id uuid.UUID, priceID string) (*domain.Subscription, error)
	PauseSubscription(ctx context.Context, id uuid.UUID, pauseUntil time.Time) (*domain.Subscription, error)
	ResumeSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	MarkSubscriptionCancelAtPeriodEnd(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	GetLatestPaymentBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) (*domain.SubscriptionPayment, error)

	// Failed transfers
	CreateFailedTransfer(ctx context.Context, ft *domain.FailedTransfer) error
	ListRetryableTransfers(ctx context.Context, maxRetries, limit int) ([]domain.FailedTransfer, error)
	ClaimTransferAttempt(ctx context.Context, id uuid.UUID, maxRetries int, attemptAt, staleBefore time.Time) (*domain.FailedTransfer, error)
	ResolveTransfer(ctx context.Context, id uuid.UUID, stripeTransferID string, resolvedAt time.Time) (*domain.FailedTransfer, error)
	RecordTransferFailure(ctx context.Context, id uuid.UUID, errorMessage string) (*domain.FailedTransfer, error)

	// Referrals and revenue
	GetReferralByReferredCreatorID(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorReferral, error)
	ActivateReferral(ctx context.Context, id uuid.UUID, activatedAt time.Time) (*domain.CreatorReferral, error)
	AccrueCommission(ctx context.Context, id uuid.UUID, amount int64) error
	ExpireReferrals(ctx context.Context, now time.Time, windowMonths int) ([]domain.CreatorReferral, error)
	ListReferralsWithUnpaidCommission(ctx context.Context, limit int) ([]domain.CreatorReferral, error)
	DeductUnpaidCommission(ctx context.Context, id uuid.UUID, amount int64) (bool, error)
	ListUnprocessedRevenueEvents(ctx context.Context, limit int) ([]domain.RevenueEvent, error)
	MarkRevenueEventProcessed(ctx context.Context, id uuid.UUID) (bool, error)
	LifetimeQualifyingRevenue(ctx context.Context, creatorID uuid.UUID, asOf time.Time) (int64, error)

	// Refunds
	CreateRefundRequest(ctx context.Context, req *domain.RefundRequest) error
	GetRefundRequestByID(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error)
	ListRefundRequestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.RefundRequest, error)
	DecideRefundRequest(ctx context.Context, id uuid.UUID, status domain.RefundStatus, stripeRefundID, adminNotes *string, decidedAt time.Time) (*domain.RefundRequest, error)
	SetRefundStripeID(ctx context.Context, id uuid.UUID, stripeRefundID string) (*domain.RefundRequest, error)
	ReopenRefundRequest(ctx context.Context, id uuid.UUID) error
}

// Processor defines the payment-processor operations this service delegates.
// Implemented by pkg/stripeclient.
type Processor interface {
	CreateAccount(ctx context.Context, creatorRef string) (string, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	GetAccount(ctx context.Context, accountID string) (*stripeclient.AccountStatus, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) error
	PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error
	CreateTransfer(ctx context.Context, destinationAccountID string, amount int64, currency, description string) (string, error)
	CreateRefund(ctx context.Context, chargeID string, amount int64) (string, error)
}

// EventPublisher defines the interface for publishing lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// publishEvent sends an event to the platform exchange, logging instead of
// failing: notification delivery is best-effort and never blocks money
// movement.
func publishEvent(ctx context.Context, publisher EventPublisher, routingKey string, body interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, rabbitmq.EventsExchange, routingKey, body); err != nil {
		log.Printf("WARN: failed to publish event %s: %v", routingKey, err)
	}
}
