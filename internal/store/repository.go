/**
 * @description
 * Data access layer for the payout service. The Repository wraps a pgx
 * connection pool and exposes raw-SQL operations for the payout, subscription,
 * transfer, referral, and refund entities; per-entity methods live in their
 * own files in this package.
 *
 * State transitions are written as conditional updates (WHERE clauses matching
 * the expected prior state) so concurrent writers — most importantly
 * overlapping scheduled runs — can never double-process a record.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors returned by repository methods. Callers match with errors.Is.
var (
	ErrPayoutAccountNotFound = errors.New("payout account not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrPaymentNotFound       = errors.New("subscription payment not found")
	ErrTransferNotFound      = errors.New("failed transfer not found")
	ErrReferralNotFound      = errors.New("referral not found")
	ErrRefundNotFound        = errors.New("refund request not found")
	ErrRefundAlreadyDecided  = errors.New("refund request already decided")
)

// Repository handles database operations for the payout service.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository backed by the given pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}
