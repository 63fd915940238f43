package ratelimit

import (
	"context"
	"encoding/hex"
	"math"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/metrics"
)

const keyPrefix = "ratelimit"

// Limiter applies one Limit to arbitrary identity keys.
type Limiter struct {
	limit   Limit
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewLimiter creates a limiter. A nil store admits everything.
func NewLimiter(limit Limit, store Store) *Limiter {
	return &Limiter{limit: limit, store: store, now: time.Now, metrics: metrics.Default()}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// WithMetrics overrides where decisions are counted.
func (l *Limiter) WithMetrics(m *metrics.Metrics) *Limiter {
	l.metrics = m
	return l
}

// Admit records one event for identity if it fits in the window. A store
// failure admits the request (fail open) and is logged; it never surfaces as
// an error.
func (l *Limiter) Admit(ctx context.Context, identity string) (Decision, error) {
	if identity == "" {
		return Decision{}, ErrEmptyKey
	}

	now := l.now()
	key := l.storageKey(identity)

	if l.store == nil {
		return l.failOpen(now), nil
	}

	usage, err := l.store.Hit(ctx, key, l.limit, now)
	if err != nil {
		logger.FromContext(ctx).Warn().
			Err(err).
			Str("limit", l.limit.Name).
			Bool("fail_open", true).
			Msg("Rate limit store unavailable, admitting request")
		return l.failOpen(now), nil
	}

	if usage.Allowed {
		l.metrics.Admission(l.limit.Name, metrics.ResultAllowed)
	} else {
		l.metrics.Admission(l.limit.Name, metrics.ResultDenied)
	}

	remaining := l.limit.Max - int(math.Ceil(usage.Count))
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    usage.Allowed,
		Limit:      l.limit.Name,
		Max:        l.limit.Max,
		Remaining:  remaining,
		ResetAt:    usage.ResetAt,
		RetryAfter: usage.RetryAfter,
	}, nil
}

func (l *Limiter) failOpen(now time.Time) Decision {
	l.metrics.Admission(l.limit.Name, metrics.ResultFailOpen)
	return Decision{
		Allowed:   true,
		Limit:     l.limit.Name,
		Max:       l.limit.Max,
		Remaining: l.limit.Max,
		ResetAt:   now.Add(l.limit.Window),
		FailOpen:  true,
	}
}

// storageKey hashes identities so raw IPs and device fingerprints never reach
// the store.
func (l *Limiter) storageKey(identity string) string {
	sum := blake2b.Sum256([]byte(identity))
	return keyPrefix + ":" + l.limit.Name + ":" + hex.EncodeToString(sum[:16])
}
