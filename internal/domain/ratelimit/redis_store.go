package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	//go:embed sliding_window.lua
	slidingWindowSource string
	//go:embed sliding_log.lua
	slidingLogSource string

	slidingWindowScript = redis.NewScript(slidingWindowSource)
	slidingLogScript    = redis.NewScript(slidingLogSource)
)

// RedisStore keeps counters in Redis so every API instance shares them. Both
// algorithms run as Lua scripts so check and increment are one atomic step.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit Limit, now time.Time) (Usage, error) {
	if s == nil || s.client == nil {
		return Usage{}, ErrStoreUnhealthy
	}
	if limit.Algorithm == SlidingWindow {
		return s.hitWeighted(ctx, key, limit, now)
	}
	return s.hitLog(ctx, key, limit, now)
}

func (s *RedisStore) hitWeighted(ctx context.Context, key string, limit Limit, now time.Time) (Usage, error) {
	start := windowStart(now, limit.Window)
	windowMs := limit.Window.Milliseconds()
	currKey := key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
	prevKey := key + ":" + strconv.FormatInt(start.UnixMilli()-windowMs, 10)

	values, err := slidingWindowScript.Run(ctx, s.client, []string{currKey, prevKey},
		limit.Max,
		windowMs,
		now.Sub(start).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("sliding window script: %w", err)
	}
	if len(values) != 3 {
		return Usage{}, ErrInvalidReply
	}

	return weightedUsage(values[0] == 1, values[1], values[2], limit, now), nil
}

func (s *RedisStore) hitLog(ctx context.Context, key string, limit Limit, now time.Time) (Usage, error) {
	values, err := slidingLogScript.Run(ctx, s.client, []string{key},
		limit.Max,
		limit.Window.Milliseconds(),
		now.UnixMilli(),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("sliding log script: %w", err)
	}
	if len(values) != 3 {
		return Usage{}, ErrInvalidReply
	}

	return logUsage(values[0] == 1, values[1], time.UnixMilli(values[2]), limit, now), nil
}
