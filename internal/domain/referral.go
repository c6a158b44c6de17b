/**
 * @description
 * Domain model for creator referrals. A referral is created at signup in the
 * pending state, activates once the referred creator reaches the activity
 * threshold, and earns commission only for revenue occurring inside the
 * bounded window that starts at activation.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReferralStatus enumerates the referral lifecycle states.
type ReferralStatus string

const (
	ReferralPending ReferralStatus = "pending"
	ReferralActive  ReferralStatus = "active"
	ReferralExpired ReferralStatus = "expired"
)

// CreatorReferral maps to the `creator_referrals` table. One row exists per
// (referrer, referred creator) pair.
//
// TotalCommission is the cumulative commission ever attributed; UnpaidCommission
// is the portion not yet submitted as a payout transfer. ActivatedAt is the
// start of the commission window and is nil while pending.
type CreatorReferral struct {
	ID                uuid.UUID      `json:"id"`
	ReferrerID        uuid.UUID      `json:"referrer_id"`
	ReferredCreatorID uuid.UUID      `json:"referred_creator_id"`
	Status            ReferralStatus `json:"status"`
	TotalCommission   int64          `json:"total_commission"`  // in cents
	UnpaidCommission  int64          `json:"unpaid_commission"` // in cents
	ActivatedAt       *time.Time     `json:"activated_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// WindowEnd returns the end of the commission window, valid only after
// activation.
func (r *CreatorReferral) WindowEnd(windowMonths int) time.Time {
	if r.ActivatedAt == nil {
		return time.Time{}
	}
	return r.ActivatedAt.AddDate(0, windowMonths, 0)
}
