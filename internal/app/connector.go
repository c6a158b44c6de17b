/**
 * @description
 * Payout account connector: links a creator to a Stripe connect account and
 * tracks its onboarding/enablement state. Enablement flags can change
 * asynchronously on the processor side (e.g. manual review completing), so
 * cached flags must be refreshed before being trusted — RefreshStatus is that
 * explicit staleness boundary.
 */
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
	"github.com/WeAreKoji/getkoji-sub002/internal/store"
)

// Connector manages creator payout accounts.
type Connector struct {
	repo            Repository
	processor       Processor
	platformBaseURL string
}

// NewConnector creates a new payout account connector.
func NewConnector(repo Repository, processor Processor, platformBaseURL string) *Connector {
	return &Connector{repo: repo, processor: processor, platformBaseURL: platformBaseURL}
}

// InitiateOnboarding creates a Stripe connect account for the creator if none
// exists and returns a fresh onboarding URL. Idempotent: an existing account
// reference is reused, never duplicated.
func (c *Connector) InitiateOnboarding(ctx context.Context, creatorID uuid.UUID) (*domain.OnboardingLink, error) {
	acct, err := c.repo.EnsurePayoutAccount(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure payout account: %w", err)
	}

	if acct.StripeAccountID == nil {
		accountID, err := c.processor.CreateAccount(ctx, creatorID.String())
		if err != nil {
			return nil, err
		}
		acct, err = c.repo.SetPayoutAccountStripeID(ctx, creatorID, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to store stripe account reference: %w", err)
		}
	}

	refreshURL := c.platformBaseURL + "/creator/payouts/onboarding/refresh"
	returnURL := c.platformBaseURL + "/creator/payouts/onboarding/return"
	url, err := c.processor.CreateAccountLink(ctx, *acct.StripeAccountID, refreshURL, returnURL)
	if err != nil {
		return nil, err
	}

	return &domain.OnboardingLink{StripeAccountID: *acct.StripeAccountID, URL: url}, nil
}

// RefreshStatus polls the processor for the account's current flags and
// persists them. Returns ErrPayoutAccountNotConnected when the creator has no
// linked account — a normal state the caller handles, not a failure.
func (c *Connector) RefreshStatus(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error) {
	acct, err := c.repo.GetPayoutAccountByCreatorID(ctx, creatorID)
	if err != nil {
		if errors.Is(err, store.ErrPayoutAccountNotFound) {
			return nil, ErrPayoutAccountNotConnected
		}
		return nil, err
	}
	if acct.StripeAccountID == nil {
		return nil, ErrPayoutAccountNotConnected
	}

	status, err := c.processor.GetAccount(ctx, *acct.StripeAccountID)
	if err != nil {
		return nil, err
	}

	return c.repo.UpdatePayoutAccountFlags(ctx, creatorID, status.DetailsSubmitted, status.PayoutsEnabled, status.ChargesEnabled)
}

// Status returns the cached enablement flags without hitting the processor.
// Callers that are about to move money must use RefreshStatus instead.
func (c *Connector) Status(ctx context.Context, creatorID uuid.UUID) (*domain.PayoutAccountStatus, error) {
	acct, err := c.repo.GetPayoutAccountByCreatorID(ctx, creatorID)
	if err != nil {
		if errors.Is(err, store.ErrPayoutAccountNotFound) {
			return &domain.PayoutAccountStatus{Connected: false}, nil
		}
		return nil, err
	}
	return &domain.PayoutAccountStatus{
		Connected:          acct.StripeAccountID != nil,
		OnboardingComplete: acct.OnboardingComplete,
		PayoutsEnabled:     acct.PayoutsEnabled,
		ChargesEnabled:     acct.ChargesEnabled,
	}, nil
}
