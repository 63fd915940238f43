package credit

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements Repository in process memory with the same
// semantics as PostgresRepository. Used by tests and by development runs
// without a database.
type MemoryRepository struct {
	mu      sync.Mutex
	quotas  map[uuid.UUID]*Quota
	txs     map[uuid.UUID]*CreditTransaction
	healthy atomic.Bool
}

func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{
		quotas: make(map[uuid.UUID]*Quota),
		txs:    make(map[uuid.UUID]*CreditTransaction),
	}
	r.healthy.Store(true)
	return r
}

// SetHealthy toggles simulated outages.
func (r *MemoryRepository) SetHealthy(v bool) {
	r.healthy.Store(v)
}

// Consumed returns the raw consumed counter, for assertions.
func (r *MemoryRepository) Consumed(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.quotas[userID]; ok {
		return q.Consumed
	}
	return 0
}

func (r *MemoryRepository) GetQuota(ctx context.Context, userID uuid.UUID) (*Quota, error) {
	if !r.healthy.Load() {
		return nil, ErrLedgerUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[userID]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (r *MemoryRepository) Deduct(ctx context.Context, userID uuid.UUID, tier Tier, dailyLimit int, reason string, now time.Time) (*Charge, error) {
	if !r.healthy.Load() {
		return nil, ErrLedgerUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[userID]
	if !ok {
		q = &Quota{UserID: userID, WindowResetAt: now.Add(ResetPeriod)}
		r.quotas[userID] = q
	}
	if q.Expired(now) {
		q.Consumed = 0
		q.WindowResetAt = now.Add(ResetPeriod)
	}
	q.Tier = string(tier)
	q.DailyLimit = dailyLimit

	if q.Consumed >= dailyLimit {
		return nil, &InsufficientCreditsError{Remaining: 0, Limit: dailyLimit, ResetAt: q.WindowResetAt}
	}

	q.Consumed++
	q.UpdatedAt = now

	if reason == "" {
		reason = "generation"
	}
	tx := &CreditTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    1,
		Reason:    reason,
		State:     string(TxStateCommitted),
		CreatedAt: now,
	}
	r.txs[tx.ID] = tx

	return &Charge{
		TransactionID: tx.ID,
		NewBalance:    remaining(dailyLimit, q.Consumed),
		ResetAt:       q.WindowResetAt,
	}, nil
}

func (r *MemoryRepository) Refund(ctx context.Context, userID, txID uuid.UUID, reason string, now time.Time) error {
	if !r.healthy.Load() {
		return ErrLedgerUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.txs[txID]
	if !ok || tx.UserID != userID {
		return ErrTransactionNotFound
	}
	if tx.State == string(TxStateRefunded) {
		return nil
	}

	tx.State = string(TxStateRefunded)
	tx.RefundReason = &reason
	refundedAt := now
	tx.RefundedAt = &refundedAt

	if q, ok := r.quotas[userID]; ok && !q.WindowResetAt.After(tx.CreatedAt.Add(ResetPeriod)) {
		if q.Consumed > 0 {
			q.Consumed--
		}
		q.UpdatedAt = now
	}
	return nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]CreditTransaction, error) {
	if !r.healthy.Load() {
		return nil, ErrLedgerUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}

	all := make([]CreditTransaction, 0)
	for _, tx := range r.txs {
		if tx.UserID == userID {
			all = append(all, *tx)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if pagination.Offset >= len(all) {
		return []CreditTransaction{}, nil
	}
	all = all[pagination.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
