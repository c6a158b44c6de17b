/**
 * @description
 * Structured event payloads published to the platform event exchange. The
 * notification service consumes these to email/alert users; this core never
 * formats or sends notifications itself.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the koji.events exchange.
const (
	EventTransferResolved         = "transfer.resolved"
	EventTransferExhausted        = "transfer.exhausted"
	EventSubscriptionPriceChanged = "subscription.price_changed"
	EventSubscriptionPaused       = "subscription.paused"
	EventSubscriptionResumed      = "subscription.resumed"
	EventSubscriptionCanceled     = "subscription.canceled"
	EventRefundProcessed          = "refund.processed"
	EventRefundRejected           = "refund.rejected"
	EventReferralActivated        = "referral.activated"
	EventReferralExpired          = "referral.expired"
)

// TransferEvent is published when the retry engine resolves or exhausts a
// failed transfer.
type TransferEvent struct {
	TransferID       uuid.UUID    `json:"transfer_id"`
	CreatorID        uuid.UUID    `json:"creator_id"`
	Kind             TransferKind `json:"kind"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	RetryCount       int          `json:"retry_count"`
	StripeTransferID *string      `json:"stripe_transfer_id,omitempty"`
	ErrorMessage     *string      `json:"error_message,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}

// SubscriptionEvent is published on every confirmed lifecycle transition.
type SubscriptionEvent struct {
	SubscriptionID uuid.UUID          `json:"subscription_id"`
	SubscriberID   uuid.UUID          `json:"subscriber_id"`
	CreatorID      uuid.UUID          `json:"creator_id"`
	Status         SubscriptionStatus `json:"status"`
	PauseUntil     *time.Time         `json:"pause_until,omitempty"`
	PriceID        string             `json:"price_id,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// RefundEvent is published when an admin decision is recorded.
type RefundEvent struct {
	RequestID      uuid.UUID `json:"request_id"`
	UserID         uuid.UUID `json:"user_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Amount         int64     `json:"amount"`
	Approved       bool      `json:"approved"`
	StripeRefundID *string   `json:"stripe_refund_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReferralEvent is published when a referral activates or expires.
type ReferralEvent struct {
	ReferralID        uuid.UUID      `json:"referral_id"`
	ReferrerID        uuid.UUID      `json:"referrer_id"`
	ReferredCreatorID uuid.UUID      `json:"referred_creator_id"`
	Status            ReferralStatus `json:"status"`
	TotalCommission   int64          `json:"total_commission"`
	Timestamp         time.Time      `json:"timestamp"`
}
