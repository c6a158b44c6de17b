/**
 * @description
 * Repository methods for the `failed_transfers` table. The retry engine is the
 * only mutator of retry_count and resolved_at. Attempts are claimed with a
 * conditional update so two overlapping retry runs can never submit the same
 * transfer twice.
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

const failedTransferColumns = `
	id, creator_id, kind, amount, currency, error_message, retry_count,
	last_retry_at, resolved_at, stripe_transfer_id, created_at, updated_at
`

func scanFailedTransfer(row pgx.Row) (*domain.FailedTransfer, error) {
	var ft domain.FailedTransfer
	err := row.Scan(
		&ft.ID,
		&ft.CreatorID,
		&ft.Kind,
		&ft.Amount,
		&ft.Currency,
		&ft.ErrorMessage,
		&ft.RetryCount,
		&ft.LastRetryAt,
		&ft.ResolvedAt,
		&ft.StripeTransferID,
		&ft.CreatedAt,
		&ft.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ft, nil
}

// CreateFailedTransfer records a payout attempt that errored at the processor.
func (r *Repository) CreateFailedTransfer(ctx context.Context, ft *domain.FailedTransfer) error {
	query := `
		INSERT INTO failed_transfers (id, creator_id, kind, amount, currency, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if ft.ID == uuid.Nil {
		ft.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query, ft.ID, ft.CreatorID, ft.Kind, ft.Amount, ft.Currency, ft.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to create failed transfer for creator %s: %w", ft.CreatorID, err)
	}
	return nil
}

// ListRetryableTransfers selects unresolved transfers still under the retry
// cap, strictly oldest first to bound worst-case staleness for any one record.
func (r *Repository) ListRetryableTransfers(ctx context.Context, maxRetries, limit int) ([]domain.FailedTransfer, error) {
	query := `
		SELECT ` + failedTransferColumns + `
		FROM failed_transfers
		WHERE resolved_at IS NULL AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.FailedTransfer
	for rows.Next() {
		ft, err := scanFailedTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *ft)
	}
	return transfers, rows.Err()
}

// ClaimTransferAttempt stamps last_retry_at for a new attempt if the row is
// still unresolved, under the cap, and not already claimed by a newer run.
// Returns nil (no error) when the claim is lost to a concurrent run, which the
// caller treats as a skip.
func (r *Repository) ClaimTransferAttempt(ctx context.Context, id uuid.UUID, maxRetries int, attemptAt, staleBefore time.Time) (*domain.FailedTransfer, error) {
	query := `
		UPDATE failed_transfers
		SET last_retry_at = $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND resolved_at IS NULL
		  AND retry_count < $3
		  AND (last_retry_at IS NULL OR last_retry_at < $4)
		RETURNING ` + failedTransferColumns
	ft, err := scanFailedTransfer(r.db.QueryRow(ctx, query, id, attemptAt, maxRetries, staleBefore))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim transfer attempt %s: %w", id, err)
	}
	return ft, nil
}

// ResolveTransfer stamps resolved_at and the external transfer reference.
// Resolving an already-resolved row is a no-op, making at-least-once
// scheduling safe.
func (r *Repository) ResolveTransfer(ctx context.Context, id uuid.UUID, stripeTransferID string, resolvedAt time.Time) (*domain.FailedTransfer, error) {
	query := `
		UPDATE failed_transfers
		SET resolved_at = $2,
		    stripe_transfer_id = $3,
		    updated_at = NOW()
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING ` + failedTransferColumns
	ft, err := scanFailedTransfer(r.db.QueryRow(ctx, query, id, resolvedAt, stripeTransferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve transfer %s: %w", id, err)
	}
	return ft, nil
}

// RecordTransferFailure increments retry_count and preserves the processor's
// error text for audit. The returned row lets the caller detect exhaustion.
func (r *Repository) RecordTransferFailure(ctx context.Context, id uuid.UUID, errorMessage string) (*domain.FailedTransfer, error) {
	query := `
		UPDATE failed_transfers
		SET retry_count = retry_count + 1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING ` + failedTransferColumns
	ft, err := scanFailedTransfer(r.db.QueryRow(ctx, query, id, errorMessage))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to record transfer failure %s: %w", id, err)
	}
	return ft, nil
}
