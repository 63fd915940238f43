package ratelimit

import (
	"context"
	"math"
	"time"
)

// Store performs an atomic check-then-increment for one key. The count is
// incremented only when the hit is allowed.
type Store interface {
	Hit(ctx context.Context, key string, limit Limit, now time.Time) (Usage, error)
}

// windowStart aligns now to the fixed window containing it.
func windowStart(now time.Time, window time.Duration) time.Time {
	w := window.Milliseconds()
	if w <= 0 {
		w = 1
	}
	ms := now.UnixMilli()
	return time.UnixMilli(ms - ms%w)
}

// weightedEstimate is prev*(1 - elapsed/window) + curr.
func weightedEstimate(prev, curr int64, elapsed, window time.Duration) float64 {
	frac := float64(elapsed) / float64(window)
	if frac > 1 {
		frac = 1
	}
	return float64(prev)*(1-frac) + float64(curr)
}

// weightedRetryAfter is how long until weightedEstimate drops below max, given
// no further admissions.
func weightedRetryAfter(prev, curr int64, max int, elapsed, window time.Duration) time.Duration {
	w := float64(window)
	var wait float64
	if curr >= int64(max) {
		// current window must roll over and then decay below max.
		wait = (w - float64(elapsed)) + w*(1-float64(max)/float64(curr))
	} else if prev > 0 {
		wait = w*(1-float64(int64(max)-curr)/float64(prev)) - float64(elapsed)
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(math.Ceil(wait)) + time.Millisecond
}

// weightedUsage turns raw counters into Usage. curr already includes this hit
// when allowed.
func weightedUsage(allowed bool, prev, curr int64, limit Limit, now time.Time) Usage {
	start := windowStart(now, limit.Window)
	elapsed := now.Sub(start)

	u := Usage{
		Allowed: allowed,
		Count:   weightedEstimate(prev, curr, elapsed, limit.Window),
		ResetAt: start.Add(2 * limit.Window),
	}
	if !allowed {
		u.RetryAfter = weightedRetryAfter(prev, curr, limit.Max, elapsed, limit.Window)
		u.ResetAt = now.Add(u.RetryAfter)
	}
	return u
}

// logUsage builds Usage for the sliding log. oldest is the earliest event
// still inside the window.
func logUsage(allowed bool, count int64, oldest time.Time, limit Limit, now time.Time) Usage {
	u := Usage{
		Allowed: allowed,
		Count:   float64(count),
		ResetAt: oldest.Add(limit.Window),
	}
	if !allowed {
		u.RetryAfter = u.ResetAt.Sub(now)
		if u.RetryAfter < time.Millisecond {
			u.RetryAfter = time.Millisecond
		}
	}
	return u
}
