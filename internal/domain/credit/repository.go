package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// PostgresRepository keeps quotas and the transaction ledger in Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetQuota(ctx context.Context, userID uuid.UUID) (*Quota, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var q Quota
	err := r.db.GetContext(ctx2, &q, `
		SELECT user_id, tier, daily_limit, consumed, window_reset_at, updated_at
		FROM usage_quotas
		WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get quota: %v", ErrLedgerUnavailable, err)
	}

	return &q, nil
}

func (r *PostgresRepository) Deduct(ctx context.Context, userID uuid.UUID, tier Tier, dailyLimit int, reason string, now time.Time) (*Charge, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrLedgerUnavailable, err)
	}
	defer tx.Rollback()

	nextReset := now.Add(ResetPeriod)

	_, err = tx.ExecContext(ctx2, `
		INSERT INTO usage_quotas (user_id, tier, daily_limit, consumed, window_reset_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, string(tier), dailyLimit, nextReset, now)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure quota: %v", ErrLedgerUnavailable, err)
	}

	// Lazy reset and conditional increment in one statement; the row lock
	// serialises concurrent charges and the WHERE is re-checked after it.
	var consumed int
	var resetAt time.Time
	err = tx.QueryRowxContext(ctx2, `
		UPDATE usage_quotas
		SET consumed = CASE WHEN window_reset_at <= $4 THEN 1 ELSE consumed + 1 END,
		    window_reset_at = CASE WHEN window_reset_at <= $4 THEN $5 ELSE window_reset_at END,
		    tier = $2,
		    daily_limit = $3,
		    updated_at = $4
		WHERE user_id = $1
		  AND $3 > 0
		  AND (window_reset_at <= $4 OR consumed < $3)
		RETURNING consumed, window_reset_at
	`, userID, string(tier), dailyLimit, now, nextReset).Scan(&consumed, &resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.insufficient(ctx2, tx, userID, dailyLimit, now)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: charge quota: %v", ErrLedgerUnavailable, err)
	}

	txID := uuid.New()
	if strings.TrimSpace(reason) == "" {
		reason = "generation"
	}
	_, err = tx.ExecContext(ctx2, `
		INSERT INTO credit_transactions (id, user_id, amount, reason, state, created_at)
		VALUES ($1, $2, 1, $3, $4, $5)
	`, txID, userID, reason, string(TxStateCommitted), now)
	if err != nil {
		return nil, fmt.Errorf("%w: insert transaction: %v", ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx: %v", ErrLedgerUnavailable, err)
	}

	return &Charge{
		TransactionID: txID,
		NewBalance:    remaining(dailyLimit, consumed),
		ResetAt:       resetAt,
	}, nil
}

func (r *PostgresRepository) insufficient(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, dailyLimit int, now time.Time) error {
	var q Quota
	err := tx.GetContext(ctx, &q, `
		SELECT user_id, tier, daily_limit, consumed, window_reset_at, updated_at
		FROM usage_quotas
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("%w: read quota: %v", ErrLedgerUnavailable, err)
	}
	return &InsufficientCreditsError{
		Remaining: remaining(dailyLimit, q.Consumed),
		Limit:     dailyLimit,
		ResetAt:   q.WindowResetAt,
	}
}

func (r *PostgresRepository) Refund(ctx context.Context, userID, txID uuid.UUID, reason string, now time.Time) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrLedgerUnavailable, err)
	}
	defer tx.Rollback()

	var chargedAt time.Time
	err = tx.QueryRowxContext(ctx2, `
		UPDATE credit_transactions
		SET state = $3, refund_reason = $4, refunded_at = $5
		WHERE id = $1 AND user_id = $2 AND state = $6
		RETURNING created_at
	`, txID, userID, string(TxStateRefunded), reason, now, string(TxStateCommitted)).Scan(&chargedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.GetContext(ctx2, &exists, `
			SELECT EXISTS(SELECT 1 FROM credit_transactions WHERE id = $1 AND user_id = $2)
		`, txID, userID); err != nil {
			return fmt.Errorf("%w: lookup transaction: %v", ErrLedgerUnavailable, err)
		}
		if !exists {
			return ErrTransactionNotFound
		}
		// already refunded
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: mark refunded: %v", ErrLedgerUnavailable, err)
	}

	// A charge from an earlier window has already been forgotten by the
	// reset, so only the window it was made in is decremented.
	_, err = tx.ExecContext(ctx2, `
		UPDATE usage_quotas
		SET consumed = GREATEST(consumed - 1, 0), updated_at = $3
		WHERE user_id = $1 AND window_reset_at <= $2
	`, userID, chargedAt.Add(ResetPeriod), now)
	if err != nil {
		return fmt.Errorf("%w: restore quota: %v", ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]CreditTransaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}

	transactions := make([]CreditTransaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, `
		SELECT id, user_id, amount, reason, state, refund_reason, created_at, refunded_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ErrLedgerUnavailable, err)
	}

	return transactions, nil
}

func remaining(limit, consumed int) int {
	if consumed >= limit {
		return 0
	}
	return limit - consumed
}
