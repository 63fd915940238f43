package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
)

type fakeRefunder struct {
	err   error
	calls int
}

func (f *fakeRefunder) Refund(ctx context.Context, userID, txID uuid.UUID, reason string) error {
	f.calls++
	return f.err
}

func TestReconcileRefunds(t *testing.T) {
	ledger := credit.NewService(credit.NewMemoryRepository(), credit.Limits{credit.TierFree: 5})
	userID := uuid.New()
	charge, err := ledger.Deduct(context.Background(), userID, credit.TierFree, "generation")
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}

	stuck := &generation.StuckCharge{UserID: userID, TransactionID: charge.TransactionID, Reason: "design generation failed", Attempts: 3}
	if got := reconcile(context.Background(), ledger, stuck); got != refunded {
		t.Fatalf("expected refunded, got %v", got)
	}
	if stuck.Attempts != 4 {
		t.Fatalf("expected attempts to be counted, got %d", stuck.Attempts)
	}

	balance, _ := ledger.Check(context.Background(), userID, credit.TierFree)
	if balance.Remaining != 5 {
		t.Fatalf("expected refunded balance, got %d", balance.Remaining)
	}

	// a second pass over the same charge is harmless
	if got := reconcile(context.Background(), ledger, stuck); got != refunded {
		t.Fatalf("expected idempotent refund, got %v", got)
	}
}

func TestReconcileRetriesThenGivesUp(t *testing.T) {
	f := &fakeRefunder{err: credit.ErrLedgerUnavailable}
	stuck := &generation.StuckCharge{UserID: uuid.New(), TransactionID: uuid.New()}

	for i := 1; i < maxAttempts; i++ {
		if got := reconcile(context.Background(), f, stuck); got != retry {
			t.Fatalf("attempt %d: expected retry, got %v", i, got)
		}
	}
	if got := reconcile(context.Background(), f, stuck); got != giveUp {
		t.Fatalf("expected give up after %d attempts, got %v", maxAttempts, got)
	}
	if stuck.Error == "" {
		t.Fatal("expected last error recorded")
	}
}

func TestReconcileUnknownTransaction(t *testing.T) {
	f := &fakeRefunder{err: fmt.Errorf("refund tx: %w", credit.ErrTransactionNotFound)}
	if got := reconcile(context.Background(), f, &generation.StuckCharge{}); got != giveUp {
		t.Fatalf("expected give up, got %v", got)
	}
	if f.calls != 1 {
		t.Fatalf("expected one call, got %d", f.calls)
	}
}
