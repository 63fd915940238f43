package generation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
)

// MaintenanceKey disables generation cluster-wide while it holds a truthy
// value.
const MaintenanceKey = "maintenance:generation"

// Switch is the maintenance kill switch.
type Switch interface {
	Enabled(ctx context.Context) bool
}

// MaintenanceSwitch combines a static flag from configuration with a Redis
// key operators can flip at runtime.
type MaintenanceSwitch struct {
	static bool
	redis  *redis.Client
}

// NewMaintenanceSwitch creates the switch. client may be nil.
func NewMaintenanceSwitch(static bool, client *redis.Client) *MaintenanceSwitch {
	return &MaintenanceSwitch{static: static, redis: client}
}

func (m *MaintenanceSwitch) Enabled(ctx context.Context) bool {
	if m.static {
		return true
	}
	if m.redis == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	val, err := m.redis.Get(ctx, MaintenanceKey).Result()
	if err != nil {
		if err != redis.Nil {
			logger.FromContext(ctx).Warn().Err(err).Msg("Maintenance switch unreadable, assuming off")
		}
		return false
	}
	switch val {
	case "1", "true", "on":
		return true
	default:
		return false
	}
}

// SetMaintenance flips the runtime switch.
func SetMaintenance(ctx context.Context, client *redis.Client, on bool) error {
	if on {
		return client.Set(ctx, MaintenanceKey, "1", 0).Err()
	}
	return client.Del(ctx, MaintenanceKey).Err()
}
