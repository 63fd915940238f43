package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Dependency states reported by Check.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

// Check pings Postgres and Redis. A nil handle is reported as disabled.
// healthy is false when any configured dependency is down.
func Check(ctx context.Context, db *sqlx.DB, rdb *redis.Client) (status map[string]string, healthy bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status = map[string]string{"postgres": StatusDisabled, "redis": StatusDisabled}
	healthy = true

	if db != nil {
		status["postgres"] = StatusUp
		if err := db.PingContext(ctx); err != nil {
			status["postgres"] = StatusDown
			healthy = false
		}
	}
	if rdb != nil {
		status["redis"] = StatusUp
		if err := rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = StatusDown
			healthy = false
		}
	}
	return status, healthy
}
