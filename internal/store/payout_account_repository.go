/**
 * @description
 * Repository methods for the `creator_payout_accounts` table. Enablement flags
 * are only ever written here, on behalf of the payout account connector.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
)

const payoutAccountColumns = `
	id, creator_id, stripe_account_id, onboarding_complete,
	payouts_enabled, charges_enabled, created_at, updated_at
`

func scanPayoutAccount(row pgx.Row) (*domain.CreatorPayoutAccount, error) {
	var acct domain.CreatorPayoutAccount
	err := row.Scan(
		&acct.ID,
		&acct.CreatorID,
		&acct.StripeAccountID,
		&acct.OnboardingComplete,
		&acct.PayoutsEnabled,
		&acct.ChargesEnabled,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// GetPayoutAccountByCreatorID fetches a creator's payout account record.
func (r *Repository) GetPayoutAccountByCreatorID(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error) {
	query := `SELECT ` + payoutAccountColumns + ` FROM creator_payout_accounts WHERE creator_id = $1`
	acct, err := scanPayoutAccount(r.db.QueryRow(ctx, query, creatorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutAccountNotFound
		}
		return nil, fmt.Errorf("failed to get payout account for creator %s: %w", creatorID, err)
	}
	return acct, nil
}

// EnsurePayoutAccount inserts a payout account row for the creator if one does
// not exist yet and returns the current row either way. The unique constraint
// on creator_id makes first-time onboarding idempotent.
func (r *Repository) EnsurePayoutAccount(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error) {
	query := `
		INSERT INTO creator_payout_accounts (creator_id)
		VALUES ($1)
		ON CONFLICT (creator_id) DO UPDATE SET updated_at = NOW()
		RETURNING ` + payoutAccountColumns
	acct, err := scanPayoutAccount(r.db.QueryRow(ctx, query, creatorID))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure payout account for creator %s: %w", creatorID, err)
	}
	return acct, nil
}

// SetPayoutAccountStripeID records the external account reference. The
// conditional write keeps the first reference ever stored; a duplicate call
// returns the row unchanged so a connect account is never superseded silently.
func (r *Repository) SetPayoutAccountStripeID(ctx context.Context, creatorID uuid.UUID, stripeAccountID string) (*domain.CreatorPayoutAccount, error) {
	query := `
		UPDATE creator_payout_accounts
		SET stripe_account_id = COALESCE(stripe_account_id, $2),
		    updated_at = NOW()
		WHERE creator_id = $1
		RETURNING ` + payoutAccountColumns
	acct, err := scanPayoutAccount(r.db.QueryRow(ctx, query, creatorID, stripeAccountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutAccountNotFound
		}
		return nil, fmt.Errorf("failed to set stripe account for creator %s: %w", creatorID, err)
	}
	return acct, nil
}

// UpdatePayoutAccountFlags persists the enablement flags reported by the
// processor during a status refresh.
func (r *Repository) UpdatePayoutAccountFlags(ctx context.Context, creatorID uuid.UUID, onboardingComplete, payoutsEnabled, chargesEnabled bool) (*domain.CreatorPayoutAccount, error) {
	query := `
		UPDATE creator_payout_accounts
		SET onboarding_complete = $2,
		    payouts_enabled = $3,
		    charges_enabled = $4,
		    updated_at = NOW()
		WHERE creator_id = $1
		RETURNING ` + payoutAccountColumns
	acct, err := scanPayoutAccount(r.db.QueryRow(ctx, query, creatorID, onboardingComplete, payoutsEnabled, chargesEnabled))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutAccountNotFound
		}
		return nil, fmt.Errorf("failed to update payout flags for creator %s: %w", creatorID, err)
	}
	return acct, nil
}
