package credit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
)

var limits = credit.Limits{credit.TierFree: 5, credit.TierPro: 50}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T) (credit.Service, *credit.MemoryRepository, *clock) {
	t.Helper()
	repo := credit.NewMemoryRepository()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return credit.NewService(repo, limits, credit.WithClock(c.Now)), repo, c
}

/* =========================
   Concurrency
   ========================= */

func TestConcurrentDeductWithOneRemaining(t *testing.T) {
	svc, repo, _ := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := svc.Deduct(ctx, userID, credit.TierFree, "warmup"); err != nil {
			t.Fatalf("warmup deduct: %v", err)
		}
	}

	const goroutines = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	success, insufficient := 0, 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deduct(ctx, userID, credit.TierFree, "generation")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, credit.ErrInsufficientCredits):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 || insufficient != goroutines-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d refusals", success, insufficient)
	}
	if got := repo.Consumed(userID); got != 5 {
		t.Fatalf("expected consumed 5, got %d", got)
	}
}

func TestInsufficientCarriesBalance(t *testing.T) {
	svc, _, c := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	first, err := svc.Deduct(ctx, userID, credit.TierFree, "generation")
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if first.NewBalance != 4 {
		t.Fatalf("expected 4 remaining, got %d", first.NewBalance)
	}
	if !first.ResetAt.Equal(c.Now().Add(credit.ResetPeriod)) {
		t.Fatalf("expected window anchored at first use, got %v", first.ResetAt)
	}
	for i := 0; i < 4; i++ {
		if _, err := svc.Deduct(ctx, userID, credit.TierFree, "generation"); err != nil {
			t.Fatalf("deduct %d: %v", i, err)
		}
	}

	_, err = svc.Deduct(ctx, userID, credit.TierFree, "generation")
	var insufficient *credit.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Remaining != 0 || insufficient.Limit != 5 || !insufficient.ResetAt.Equal(first.ResetAt) {
		t.Fatalf("unexpected error payload %+v", insufficient)
	}
}

/* =========================
   Refunds
   ========================= */

func TestRefundIdempotent(t *testing.T) {
	svc, repo, _ := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	charge, err := svc.Deduct(ctx, userID, credit.TierFree, "generation")
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if _, err := svc.Deduct(ctx, userID, credit.TierFree, "generation"); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	if err := svc.Refund(ctx, userID, charge.TransactionID, "design generation failed"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	after := repo.Consumed(userID)
	if err := svc.Refund(ctx, userID, charge.TransactionID, "design generation failed"); err != nil {
		t.Fatalf("second refund: %v", err)
	}

	if after != 1 || repo.Consumed(userID) != 1 {
		t.Fatalf("expected one refund to apply once, consumed %d then %d", after, repo.Consumed(userID))
	}

	txs, err := svc.Transactions(ctx, userID, 10, 0)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	refunded := 0
	for _, tx := range txs {
		if tx.State == string(credit.TxStateRefunded) {
			refunded++
			if tx.RefundReason == nil || *tx.RefundReason != "design generation failed" {
				t.Fatalf("expected refund reason recorded, got %+v", tx)
			}
		}
	}
	if refunded != 1 {
		t.Fatalf("expected one refunded transaction, got %d", refunded)
	}
}

func TestRefundUnknownTransaction(t *testing.T) {
	svc, _, _ := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	if err := svc.Refund(ctx, userID, uuid.New(), "x"); !errors.Is(err, credit.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}

	// another user's charge is not refundable by this user
	charge, _ := svc.Deduct(ctx, uuid.New(), credit.TierFree, "generation")
	if err := svc.Refund(ctx, userID, charge.TransactionID, "x"); !errors.Is(err, credit.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound for foreign charge, got %v", err)
	}
}

func TestRefundFromExpiredWindowDoesNotCreditNewWindow(t *testing.T) {
	svc, repo, c := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	old, _ := svc.Deduct(ctx, userID, credit.TierFree, "generation")
	c.Advance(credit.ResetPeriod + time.Minute)
	if _, err := svc.Deduct(ctx, userID, credit.TierFree, "generation"); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	if err := svc.Refund(ctx, userID, old.TransactionID, "late"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := repo.Consumed(userID); got != 1 {
		t.Fatalf("expected new window untouched, consumed %d", got)
	}
}

/* =========================
   Window reset
   ========================= */

func TestLazyReset(t *testing.T) {
	svc, _, c := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Deduct(ctx, userID, credit.TierFree, "generation"); err != nil {
			t.Fatalf("deduct %d: %v", i, err)
		}
	}

	bal, _ := svc.Check(ctx, userID, credit.TierFree)
	if bal.HasCredits || bal.Remaining != 0 {
		t.Fatalf("expected exhausted balance, got %+v", bal)
	}

	c.Advance(credit.ResetPeriod)

	bal, _ = svc.Check(ctx, userID, credit.TierFree)
	if !bal.HasCredits || bal.Remaining != 5 {
		t.Fatalf("expected full balance after window, got %+v", bal)
	}

	charge, err := svc.Deduct(ctx, userID, credit.TierFree, "generation")
	if err != nil {
		t.Fatalf("deduct after reset: %v", err)
	}
	if charge.NewBalance != 4 || !charge.ResetAt.Equal(c.Now().Add(credit.ResetPeriod)) {
		t.Fatalf("expected window re-anchored at first use, got %+v", charge)
	}
}

func TestTierLimits(t *testing.T) {
	svc, _, _ := newService(t)
	bal, err := svc.Check(context.Background(), uuid.New(), credit.TierPro)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if bal.Limit != 50 || bal.Remaining != 50 {
		t.Fatalf("expected pro limit 50, got %+v", bal)
	}
	if credit.ParseTier("enterprise") != credit.TierFree {
		t.Fatal("expected unknown tier to map to free")
	}
}

/* =========================
   Failure policy
   ========================= */

func TestCheckFailsSoftDeductFailsClosed(t *testing.T) {
	svc, repo, _ := newService(t)
	userID := uuid.New()
	ctx := context.Background()
	repo.SetHealthy(false)

	bal, err := svc.Check(ctx, userID, credit.TierFree)
	if err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	if !bal.HasCredits || !bal.Degraded {
		t.Fatalf("expected optimistic degraded balance, got %+v", bal)
	}

	if _, err := svc.Deduct(ctx, userID, credit.TierFree, "generation"); !errors.Is(err, credit.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestTransactionsPagination(t *testing.T) {
	svc, _, c := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Deduct(ctx, userID, credit.TierFree, "generation"); err != nil {
			t.Fatalf("deduct: %v", err)
		}
		c.Advance(time.Second)
	}

	page, err := svc.Transactions(ctx, userID, 2, 0)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(page) != 2 || !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("expected newest-first page of 2, got %+v", page)
	}

	page, _ = svc.Transactions(ctx, userID, 2, 2)
	if len(page) != 1 {
		t.Fatalf("expected 1 row on second page, got %d", len(page))
	}
}
