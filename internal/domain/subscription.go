/**
 * @description
 * Domain models for subscriber-to-creator subscriptions and their recorded
 * payments. Amounts are stored as int64 in the smallest currency unit (cents)
 * to avoid floating-point inaccuracies with financial data.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus enumerates the lifecycle states of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPaused   SubscriptionStatus = "paused"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
)

// Subscription maps to the `subscriptions` table. At most one non-canceled
// record exists per (subscriber, creator) pair.
//
// Cancellation is always scheduled for the end of the current billing period:
// CancelAtPeriodEnd is flipped synchronously while Status stays as-is until the
// period actually ends, so subscribers keep access they have already paid for.
type Subscription struct {
	ID                   uuid.UUID          `json:"id"`
	SubscriberID         uuid.UUID          `json:"subscriber_id"`
	CreatorID            uuid.UUID          `json:"creator_id"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string             `json:"stripe_price_id"`
	Status               SubscriptionStatus `json:"status"`
	PauseUntil           *time.Time         `json:"pause_until,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionCanceled
}

// SubscriptionPayment records a settled charge for a billing period. Rows are
// written by the payment webhook glue (outside this core) and read here to
// validate and resolve refunds.
type SubscriptionPayment struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Amount         int64     `json:"amount"` // in cents
	Currency       string    `json:"currency"`
	StripeChargeID *string   `json:"stripe_charge_id,omitempty"`
	StripeInvoiceID string   `json:"stripe_invoice_id"`
	PaidAt         time.Time `json:"paid_at"`
	CreatedAt      time.Time `json:"created_at"`
}
