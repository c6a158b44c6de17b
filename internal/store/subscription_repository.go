/**
 * @description
 * Repository methods for the `subscriptions` and `subscription_payments`
 * tables. Every lifecycle transition is a conditional update keyed on the
 * expected prior status, so an out-of-state call affects zero rows and the
 * service layer can reject it without having mutated anything.
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

const subscriptionColumns = `
	id, subscriber_id, creator_id, stripe_subscription_id, stripe_price_id,
	status, pause_until, cancel_at_period_end, current_period_end,
	created_at, updated_at
`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.SubscriberID,
		&sub.CreatorID,
		&sub.StripeSubscriptionID,
		&sub.StripePriceID,
		&sub.Status,
		&sub.PauseUntil,
		&sub.CancelAtPeriodEnd,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscriptionByID fetches a single subscription.
func (r *Repository) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	return sub, nil
}

// ListSubscriptionsBySubscriberID returns all subscriptions held by a
// subscriber, newest first.
func (r *Repository) ListSubscriptionsBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE subscriber_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for subscriber %s: %w", subscriberID, err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// UpdateSubscriptionPrice records a confirmed price change. Only an active
// subscription may change price; a zero-row update means the status moved
// underneath us and the caller gets ErrSubscriptionNotFound.
func (r *Repository) UpdateSubscriptionPrice(ctx context.Context, id uuid.UUID, priceID string) (*domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET stripe_price_id = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + subscriptionColumns
	return r.scanConditionalSubscription(r.db.QueryRow(ctx, query, id, priceID), id)
}

// PauseSubscription transitions active -> paused and records the resume target.
func (r *Repository) PauseSubscription(ctx context.Context, id uuid.UUID, pauseUntil time.Time) (*domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET status = 'paused',
		    pause_until = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + subscriptionColumns
	return r.scanConditionalSubscription(r.db.QueryRow(ctx, query, id, pauseUntil), id)
}

// ResumeSubscription transitions paused -> active and clears pause_until.
func (r *Repository) ResumeSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET status = 'active',
		    pause_until = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'paused'
		RETURNING ` + subscriptionColumns
	return r.scanConditionalSubscription(r.db.QueryRow(ctx, query, id), id)
}

// MarkSubscriptionCancelAtPeriodEnd flags cancellation without touching the
// status; the status flips to canceled when the billing period actually ends.
func (r *Repository) MarkSubscriptionCancelAtPeriodEnd(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET cancel_at_period_end = TRUE,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'canceled'
		RETURNING ` + subscriptionColumns
	return r.scanConditionalSubscription(r.db.QueryRow(ctx, query, id), id)
}

func (r *Repository) scanConditionalSubscription(row pgx.Row, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to update subscription %s: %w", id, err)
	}
	return sub, nil
}

// GetLatestPaymentBySubscriptionID returns the most recent settled payment for
// a subscription. Refund validation and charge resolution both depend on it.
func (r *Repository) GetLatestPaymentBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) (*domain.SubscriptionPayment, error) {
	query := `
		SELECT id, subscription_id, amount, currency, stripe_charge_id,
		       stripe_invoice_id, paid_at, created_at
		FROM subscription_payments
		WHERE subscription_id = $1
		ORDER BY paid_at DESC
		LIMIT 1
	`
	var p domain.SubscriptionPayment
	err := r.db.QueryRow(ctx, query, subscriptionID).Scan(
		&p.ID,
		&p.SubscriptionID,
		&p.Amount,
		&p.Currency,
		&p.StripeChargeID,
		&p.StripeInvoiceID,
		&p.PaidAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get latest payment for subscription %s: %w", subscriptionID, err)
	}
	return &p, nil
}
