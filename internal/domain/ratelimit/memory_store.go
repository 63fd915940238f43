package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type counterState struct {
	start time.Time
	prev  int64
	curr  int64
}

// MemoryStore is a process-local Store for tests and single-instance
// development without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counterState
	logs     map[string][]time.Time
	healthy  atomic.Bool
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*counterState),
		logs:     make(map[string][]time.Time),
	}
	s.healthy.Store(true)
	return s
}

// SetHealthy toggles simulated outages.
func (s *MemoryStore) SetHealthy(v bool) {
	s.healthy.Store(v)
}

func (s *MemoryStore) Hit(ctx context.Context, key string, limit Limit, now time.Time) (Usage, error) {
	if !s.healthy.Load() {
		return Usage{}, ErrStoreUnhealthy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit.Algorithm == SlidingWindow {
		return s.hitWeighted(key, limit, now), nil
	}
	return s.hitLog(key, limit, now), nil
}

func (s *MemoryStore) hitWeighted(key string, limit Limit, now time.Time) Usage {
	start := windowStart(now, limit.Window)

	st, ok := s.counters[key]
	if !ok {
		st = &counterState{start: start}
		s.counters[key] = st
	}
	switch {
	case st.start.Equal(start):
	case st.start.Add(limit.Window).Equal(start):
		st.prev, st.curr, st.start = st.curr, 0, start
	default:
		st.prev, st.curr, st.start = 0, 0, start
	}

	allowed := weightedEstimate(st.prev, st.curr, now.Sub(start), limit.Window) < float64(limit.Max)
	if allowed {
		st.curr++
	}
	return weightedUsage(allowed, st.prev, st.curr, limit, now)
}

func (s *MemoryStore) hitLog(key string, limit Limit, now time.Time) Usage {
	cutoff := now.Add(-limit.Window)

	events := s.logs[key]
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	events = events[i:]

	allowed := len(events) < limit.Max
	if allowed {
		events = append(events, now)
	}
	s.logs[key] = events

	if len(events) == 0 {
		delete(s.logs, key)
		return logUsage(allowed, 0, now, limit, now)
	}
	return logUsage(allowed, int64(len(events)), events[0], limit, now)
}
