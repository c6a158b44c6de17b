/**
 * @description
 * Domain model for subscriber refund requests. A request is created by a
 * subscriber and decided exactly once by an admin; processed and rejected are
 * terminal.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus enumerates the refund request states.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
	RefundRejected  RefundStatus = "rejected"
)

// RefundRequest maps to the `refund_requests` table.
type RefundRequest struct {
	ID             uuid.UUID    `json:"id"`
	UserID         uuid.UUID    `json:"user_id"`
	SubscriptionID uuid.UUID    `json:"subscription_id"`
	Amount         int64        `json:"amount"` // in cents, never exceeds the original charge
	Reason         string       `json:"reason"`
	Status         RefundStatus `json:"status"`
	StripeRefundID *string      `json:"stripe_refund_id,omitempty"`
	AdminNotes     *string      `json:"admin_notes,omitempty"`
	DecidedAt      *time.Time   `json:"decided_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
