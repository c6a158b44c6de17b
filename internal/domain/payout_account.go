/**
 * @description
 * Domain model for a creator's payout account. One record exists per creator once
 * payout setup has been initiated. The Stripe account reference is nullable until
 * the creator completes the connect flow; the enablement flags mirror the
 * processor's view and are only trustworthy after a RefreshStatus call.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreatorPayoutAccount maps to the `creator_payout_accounts` table.
type CreatorPayoutAccount struct {
	ID                 uuid.UUID `json:"id"`
	CreatorID          uuid.UUID `json:"creator_id"`
	StripeAccountID    *string   `json:"stripe_account_id,omitempty"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	PayoutsEnabled     bool      `json:"payouts_enabled"`
	ChargesEnabled     bool      `json:"charges_enabled"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PayoutAccountStatus is the DTO returned to callers asking about a creator's
// payout readiness. Connected is false when the creator has never started
// onboarding, which is a normal state rather than an error.
type PayoutAccountStatus struct {
	Connected          bool `json:"connected"`
	OnboardingComplete bool `json:"onboarding_complete"`
	PayoutsEnabled     bool `json:"payouts_enabled"`
	ChargesEnabled     bool `json:"charges_enabled"`
}

// OnboardingLink is returned by InitiateOnboarding. The URL is single-use and
// short-lived on the processor side, so a fresh one is minted per call even when
// the underlying account already exists.
type OnboardingLink struct {
	StripeAccountID string `json:"stripe_account_id"`
	URL             string `json:"url"`
}
