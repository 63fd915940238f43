package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
)

// Limits maps tiers to daily credit limits.
type Limits map[Tier]int

func (l Limits) For(tier Tier) int {
	if n, ok := l[tier]; ok {
		return n
	}
	return l[TierFree]
}

// Option configures the service.
type Option func(*service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// service implements the Service interface
type service struct {
	repo   Repository
	limits Limits
	now    func() time.Time
}

// NewService creates a new credit service
func NewService(repo Repository, limits Limits, opts ...Option) Service {
	s := &service{repo: repo, limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Check(ctx context.Context, userID uuid.UUID, tier Tier) (*Balance, error) {
	now := s.now()
	limit := s.limits.For(tier)

	full := &Balance{
		HasCredits: limit > 0,
		Remaining:  limit,
		Limit:      limit,
		Tier:       tier,
		ResetAt:    now.Add(ResetPeriod),
	}

	q, err := s.repo.GetQuota(ctx, userID)
	if err != nil {
		// soft failure; Deduct is the authoritative check
		logger.FromContext(ctx).Warn().
			Err(err).
			Str("user_id", userID.String()).
			Msg("Credit check failed, reporting optimistic balance")
		full.HasCredits = true
		full.Degraded = true
		return full, nil
	}
	if q == nil || q.Expired(now) {
		return full, nil
	}

	left := remaining(limit, q.Consumed)
	return &Balance{
		HasCredits: left > 0,
		Remaining:  left,
		Limit:      limit,
		Tier:       tier,
		ResetAt:    q.WindowResetAt,
	}, nil
}

func (s *service) Deduct(ctx context.Context, userID uuid.UUID, tier Tier, reason string) (*Charge, error) {
	charge, err := s.repo.Deduct(ctx, userID, tier, s.limits.For(tier), reason, s.now())
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrLedgerUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return charge, nil
}

func (s *service) Refund(ctx context.Context, userID, txID uuid.UUID, reason string) error {
	err := s.repo.Refund(ctx, userID, txID, reason, s.now())
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) || errors.Is(err, ErrLedgerUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// Transactions returns paginated transaction history for a user
func (s *service) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]CreditTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, Pagination{Limit: limit, Offset: offset})
}
