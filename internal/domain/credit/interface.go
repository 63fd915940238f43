package credit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service interface defines the credit ledger operations
type Service interface {
	// Check returns the current balance without side effects. A store error
	// is reported as an optimistic balance, never as an error.
	Check(ctx context.Context, userID uuid.UUID, tier Tier) (*Balance, error)

	// Deduct atomically charges one credit if the daily limit allows it.
	// Returns *InsufficientCreditsError when exhausted and
	// ErrLedgerUnavailable when the store fails.
	Deduct(ctx context.Context, userID uuid.UUID, tier Tier, reason string) (*Charge, error)

	// Refund reverses a charge. Refunding the same transaction twice is a
	// no-op; an unknown transaction returns ErrTransactionNotFound.
	Refund(ctx context.Context, userID, txID uuid.UUID, reason string) error

	// Transactions returns paginated history, newest first
	Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]CreditTransaction, error)
}

// Repository is the storage behind the ledger. Implementations must make
// Deduct and Refund atomic per user.
type Repository interface {
	// GetQuota returns the stored quota, or nil when the user has none yet.
	GetQuota(ctx context.Context, userID uuid.UUID) (*Quota, error)

	// Deduct increments consumed when below dailyLimit, lazily starting a new
	// window first if the current one expired, and records a committed
	// transaction. Returns *InsufficientCreditsError when at the limit.
	Deduct(ctx context.Context, userID uuid.UUID, tier Tier, dailyLimit int, reason string, now time.Time) (*Charge, error)

	// Refund flips a committed transaction to refunded and, only then,
	// decrements consumed if the charge belongs to the current window.
	Refund(ctx context.Context, userID, txID uuid.UUID, reason string, now time.Time) error

	ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]CreditTransaction, error)
}
