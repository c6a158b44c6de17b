/**
 * @description
 * Repository methods for the `creator_referrals` and `revenue_events` tables.
 * Commission accrual consumes revenue events exactly once via a conditional
 * processed_at stamp, and referral transitions are guarded by expected-status
 * clauses.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
)

const referralColumns = `
	id, referrer_id, referred_creator_id, status, total_commission,
	unpaid_commission, activated_at, created_at, updated_at
`

func scanReferral(row pgx.Row) (*domain.CreatorReferral, error) {
	var ref domain.CreatorReferral
	err := row.Scan(
		&ref.ID,
		&ref.ReferrerID,
		&ref.ReferredCreatorID,
		&ref.Status,
		&ref.TotalCommission,
		&ref.UnpaidCommission,
		&ref.ActivatedAt,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetReferralByReferredCreatorID fetches the referral covering a creator.
func (r *Repository) GetReferralByReferredCreatorID(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorReferral, error) {
	query := `SELECT ` + referralColumns + ` FROM creator_referrals WHERE referred_creator_id = $1`
	ref, err := scanReferral(r.db.QueryRow(ctx, query, creatorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral for creator %s: %w", creatorID, err)
	}
	return ref, nil
}

// ActivateReferral transitions pending -> active and stamps the commission
// window start. A zero-row update means another run already activated it.
func (r *Repository) ActivateReferral(ctx context.Context, id uuid.UUID, activatedAt time.Time) (*domain.CreatorReferral, error) {
	query := `
		UPDATE creator_referrals
		SET status = 'active',
		    activated_at = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + referralColumns
	ref, err := scanReferral(r.db.QueryRow(ctx, query, id, activatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to activate referral %s: %w", id, err)
	}
	return ref, nil
}

// AccrueCommission adds an attributed amount to an activated referral. The
// status is deliberately not part of the guard: a late-arriving event for
// revenue earned before expiry still accrues after the referral has moved to
// expired. The window check itself is the attributor's job.
func (r *Repository) AccrueCommission(ctx context.Context, id uuid.UUID, amount int64) error {
	query := `
		UPDATE creator_referrals
		SET total_commission = total_commission + $2,
		    unpaid_commission = unpaid_commission + $2,
		    updated_at = NOW()
		WHERE id = $1 AND activated_at IS NOT NULL
	`
	tag, err := r.db.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("failed to accrue commission on referral %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReferralNotFound
	}
	return nil
}

// ExpireReferrals moves active referrals whose window has fully elapsed to
// expired and returns them so expiry events can be published.
func (r *Repository) ExpireReferrals(ctx context.Context, now time.Time, windowMonths int) ([]domain.CreatorReferral, error) {
	query := `
		UPDATE creator_referrals
		SET status = 'expired',
		    updated_at = NOW()
		WHERE status = 'active'
		  AND activated_at + make_interval(months => $2) <= $1
		RETURNING ` + referralColumns
	rows, err := r.db.Query(ctx, query, now, windowMonths)
	if err != nil {
		return nil, fmt.Errorf("failed to expire referrals: %w", err)
	}
	defer rows.Close()

	var refs []domain.CreatorReferral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

// ListReferralsWithUnpaidCommission returns referrals holding accrued
// commission awaiting payout, oldest first.
func (r *Repository) ListReferralsWithUnpaidCommission(ctx context.Context, limit int) ([]domain.CreatorReferral, error) {
	query := `
		SELECT ` + referralColumns + `
		FROM creator_referrals
		WHERE unpaid_commission > 0
		ORDER BY updated_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals with unpaid commission: %w", err)
	}
	defer rows.Close()

	var refs []domain.CreatorReferral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

// DeductUnpaidCommission subtracts a paid-out amount. The balance check makes
// the deduction safe against a concurrent payout run claiming the same funds.
func (r *Repository) DeductUnpaidCommission(ctx context.Context, id uuid.UUID, amount int64) (bool, error) {
	query := `
		UPDATE creator_referrals
		SET unpaid_commission = unpaid_commission - $2,
		    updated_at = NOW()
		WHERE id = $1 AND unpaid_commission >= $2
	`
	tag, err := r.db.Exec(ctx, query, id, amount)
	if err != nil {
		return false, fmt.Errorf("failed to deduct unpaid commission on referral %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListUnprocessedRevenueEvents returns qualifying-revenue events not yet
// consumed by the attributor, oldest occurrence first.
func (r *Repository) ListUnprocessedRevenueEvents(ctx context.Context, limit int) ([]domain.RevenueEvent, error) {
	query := `
		SELECT id, creator_id, amount, occurred_at, processed_at
		FROM revenue_events
		WHERE processed_at IS NULL
		ORDER BY occurred_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed revenue events: %w", err)
	}
	defer rows.Close()

	var events []domain.RevenueEvent
	for rows.Next() {
		var ev domain.RevenueEvent
		if err := rows.Scan(&ev.ID, &ev.CreatorID, &ev.Amount, &ev.OccurredAt, &ev.ProcessedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkRevenueEventProcessed stamps a revenue event as consumed. Returns false
// when another run got there first.
func (r *Repository) MarkRevenueEventProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE revenue_events
		SET processed_at = NOW()
		WHERE id = $1 AND processed_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark revenue event %s processed: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// LifetimeQualifyingRevenue sums a creator's qualifying revenue that occurred
// at or before asOf, used to judge the referral activation milestone. The
// cutoff keeps the milestone check honest against out-of-order processing:
// revenue that had not yet occurred at that point must not count toward it.
func (r *Repository) LifetimeQualifyingRevenue(ctx context.Context, creatorID uuid.UUID, asOf time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM revenue_events WHERE creator_id = $1 AND occurred_at <= $2`
	var total int64
	if err := r.db.QueryRow(ctx, query, creatorID, asOf).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum qualifying revenue for creator %s: %w", creatorID, err)
	}
	return total, nil
}
