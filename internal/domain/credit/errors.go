package credit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientCredits is returned when the daily limit is used up
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrLedgerUnavailable is returned when the store cannot be reached
	ErrLedgerUnavailable = errors.New("credit ledger unavailable")

	// ErrTransactionNotFound is returned when refunding an unknown charge
	ErrTransactionNotFound = errors.New("credit transaction not found")
)

// InsufficientCreditsError carries the balance at the time of refusal.
type InsufficientCreditsError struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("%s: %d of %d left, resets at %s", ErrInsufficientCredits, e.Remaining, e.Limit, e.ResetAt.Format(time.RFC3339))
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}
