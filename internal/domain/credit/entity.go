package credit

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the subscription tier a daily limit is looked up by.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier maps a claim value to a Tier. Unknown values are free.
func ParseTier(s string) Tier {
	if Tier(s) == TierPro {
		return TierPro
	}
	return TierFree
}

// TxState is the lifecycle state of a charge.
type TxState string

const (
	TxStateCommitted TxState = "committed"
	TxStateRefunded  TxState = "refunded"
)

// ResetPeriod is the length of a quota window. A window starts at the first
// charge after the previous one expired.
const ResetPeriod = 24 * time.Hour

// Quota is a usage_quotas row.
type Quota struct {
	UserID        uuid.UUID `db:"user_id"`
	Tier          string    `db:"tier"`
	DailyLimit    int       `db:"daily_limit"`
	Consumed      int       `db:"consumed"`
	WindowResetAt time.Time `db:"window_reset_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Expired reports whether the window has lapsed at now.
func (q *Quota) Expired(now time.Time) bool {
	return !now.Before(q.WindowResetAt)
}

// CreditTransaction is a ledger row. Rows are never deleted.
type CreditTransaction struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	Amount       int        `db:"amount" json:"amount"`
	Reason       string     `db:"reason" json:"reason"`
	State        string     `db:"state" json:"state"`
	RefundReason *string    `db:"refund_reason" json:"refund_reason,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	RefundedAt   *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
}

// Balance is the read-only view returned by Check.
type Balance struct {
	HasCredits bool      `json:"has_credits"`
	Remaining  int       `json:"remaining"`
	Limit      int       `json:"limit"`
	Tier       Tier      `json:"tier"`
	ResetAt    time.Time `json:"reset_at"`
	// Degraded is set when the store could not be read and the balance is
	// an optimistic guess.
	Degraded bool `json:"degraded,omitempty"`
}

// Charge is the result of a successful Deduct.
type Charge struct {
	TransactionID uuid.UUID
	NewBalance    int
	ResetAt       time.Time
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}
