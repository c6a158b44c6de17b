/**
 * @description
 * Domain models for failed payout transfers and the qualifying-revenue events
 * that feed referral commission attribution.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferKind distinguishes what a payout transfer was for. Commission
// transfers to referrers share the same retry handling as creator earnings.
type TransferKind string

const (
	TransferEarnings   TransferKind = "earnings"
	TransferCommission TransferKind = "commission"
)

// FailedTransfer maps to the `failed_transfers` table. One row is created per
// failed payout attempt and mutated only by the retry engine. A row becomes
// immutable once ResolvedAt is set or RetryCount reaches the configured cap;
// exhausted rows stay unresolved and wait for manual intervention.
type FailedTransfer struct {
	ID               uuid.UUID    `json:"id"`
	CreatorID        uuid.UUID    `json:"creator_id"` // payee: creator or referrer
	Kind             TransferKind `json:"kind"`
	Amount           int64        `json:"amount"` // in cents
	Currency         string       `json:"currency"`
	ErrorMessage     string       `json:"error_message"`
	RetryCount       int          `json:"retry_count"`
	LastRetryAt      *time.Time   `json:"last_retry_at,omitempty"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
	StripeTransferID *string      `json:"stripe_transfer_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// RevenueEvent is an append-only record of qualifying revenue earned by a
// creator. OccurredAt is when the revenue was earned, which is the timestamp
// commission attribution is judged against; ProcessedAt marks consumption by
// the attributor so at-least-once scheduling stays idempotent.
type RevenueEvent struct {
	ID          uuid.UUID  `json:"id"`
	CreatorID   uuid.UUID  `json:"creator_id"`
	Amount      int64      `json:"amount"` // in cents
	OccurredAt  time.Time  `json:"occurred_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
