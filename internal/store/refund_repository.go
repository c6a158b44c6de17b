/**
 * @description
 * Repository methods for the `refund_requests` table. The admin decision is
 * recorded with a conditional update from 'pending' so a request can be
 * decided exactly once.
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

const refundColumns = `
	id, user_id, subscription_id, amount, reason, status, stripe_refund_id,
	admin_notes, decided_at, created_at, updated_at
`

func scanRefundRequest(row pgx.Row) (*domain.RefundRequest, error) {
	var req domain.RefundRequest
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.SubscriptionID,
		&req.Amount,
		&req.Reason,
		&req.Status,
		&req.StripeRefundID,
		&req.AdminNotes,
		&req.DecidedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateRefundRequest inserts a new pending request.
func (r *Repository) CreateRefundRequest(ctx context.Context, req *domain.RefundRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	query := `
		INSERT INTO refund_requests (id, user_id, subscription_id, amount, reason)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, req.ID, req.UserID, req.SubscriptionID, req.Amount, req.Reason)
	if err != nil {
		return fmt.Errorf("failed to create refund request for subscription %s: %w", req.SubscriptionID, err)
	}
	return nil
}

// GetRefundRequestByID fetches a single refund request.
func (r *Repository) GetRefundRequestByID(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_requests WHERE id = $1`
	req, err := scanRefundRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("failed to get refund request %s: %w", id, err)
	}
	return req, nil
}

// ListRefundRequestsByUserID returns a user's refund requests, newest first.
func (r *Repository) ListRefundRequestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.RefundRequest, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_requests WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refund requests for user %s: %w", userID, err)
	}
	defer rows.Close()

	var reqs []domain.RefundRequest
	for rows.Next() {
		req, err := scanRefundRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

// DecideRefundRequest records the terminal admin decision. Only a pending
// request can be decided; a second decision returns ErrRefundAlreadyDecided.
func (r *Repository) DecideRefundRequest(ctx context.Context, id uuid.UUID, status domain.RefundStatus, stripeRefundID, adminNotes *string, decidedAt time.Time) (*domain.RefundRequest, error) {
	query := `
		UPDATE refund_requests
		SET status = $2,
		    stripe_refund_id = $3,
		    admin_notes = $4,
		    decided_at = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + refundColumns
	req, err := scanRefundRequest(r.db.QueryRow(ctx, query, id, status, stripeRefundID, adminNotes, decidedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundAlreadyDecided
		}
		return nil, fmt.Errorf("failed to decide refund request %s: %w", id, err)
	}
	return req, nil
}

// SetRefundStripeID stores the processor refund reference on an already
// processed request.
func (r *Repository) SetRefundStripeID(ctx context.Context, id uuid.UUID, stripeRefundID string) (*domain.RefundRequest, error) {
	query := `
		UPDATE refund_requests
		SET stripe_refund_id = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processed'
		RETURNING ` + refundColumns
	req, err := scanRefundRequest(r.db.QueryRow(ctx, query, id, stripeRefundID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("failed to store refund reference on request %s: %w", id, err)
	}
	return req, nil
}

// ReopenRefundRequest returns a processed request without a refund reference
// back to pending. Used to roll back a claimed approval whose processor call
// failed, so the request can be decided again.
func (r *Repository) ReopenRefundRequest(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE refund_requests
		SET status = 'pending',
		    admin_notes = NULL,
		    decided_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processed' AND stripe_refund_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reopen refund request %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefundNotFound
	}
	return nil
}
