package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
)

// Redis lists holding charges whose refund failed. Charges the refund worker
// gives up on move to the dead list.
const (
	StuckChargesKey     = "alerts:stuck_charges"
	StuckChargesDeadKey = "alerts:stuck_charges:dead"

	// StuckChargesProcessingKey holds charges a worker has claimed but not
	// yet settled, so a crash does not lose them.
	StuckChargesProcessingKey = "alerts:stuck_charges:processing"
)

// StuckCharge describes a charge that was taken for failed work and could
// not be refunded.
type StuckCharge struct {
	UserID        uuid.UUID `json:"user_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Reason        string    `json:"reason"`
	Error         string    `json:"error"`
	RequestID     string    `json:"request_id,omitempty"`
	At            time.Time `json:"at"`
	Attempts      int       `json:"attempts"`
}

// Alerter notifies operators about charges that need manual attention.
type Alerter interface {
	StuckCharge(ctx context.Context, charge StuckCharge)
}

// RedisAlerter logs every stuck charge at ERROR level and, when Redis is
// configured, queues it for the refund worker.
type RedisAlerter struct {
	redis *redis.Client
}

// NewAlerter creates an alerter. client may be nil.
func NewAlerter(client *redis.Client) *RedisAlerter {
	return &RedisAlerter{redis: client}
}

func (a *RedisAlerter) StuckCharge(ctx context.Context, charge StuckCharge) {
	logger.FromContext(ctx).Error().
		Str("alert", "stuck_charge").
		Str("user_id", charge.UserID.String()).
		Str("transaction_id", charge.TransactionID.String()).
		Str("reason", charge.Reason).
		Str("refund_error", charge.Error).
		Int("attempts", charge.Attempts).
		Msg("Refund failed, charge needs manual reconciliation")

	if a.redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := PushStuckCharge(ctx, a.redis, StuckChargesKey, charge); err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("Failed to queue stuck charge")
	}
}

// ClaimedCharge is a stuck charge moved to the processing list. Raw is the
// exact payload, needed to acknowledge it.
type ClaimedCharge struct {
	StuckCharge
	Raw string
}

// ClaimStuckCharge blocks up to timeout for the next queued stuck charge and
// moves it to the processing list. It returns nil, nil when the queue stayed
// empty. A payload that does not decode is dead-lettered.
func ClaimStuckCharge(ctx context.Context, client *redis.Client, timeout time.Duration) (*ClaimedCharge, error) {
	raw, err := client.BLMove(ctx, StuckChargesKey, StuckChargesProcessingKey, "LEFT", "RIGHT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	claimed := &ClaimedCharge{Raw: raw}
	if err := json.Unmarshal([]byte(raw), &claimed.StuckCharge); err != nil {
		_, txErr := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, StuckChargesDeadKey, raw)
			pipe.LRem(ctx, StuckChargesProcessingKey, 1, raw)
			return nil
		})
		return nil, errors.Join(fmt.Errorf("decode stuck charge: %w", err), txErr)
	}
	return claimed, nil
}

// SettleStuckCharge removes a claimed charge from the processing list and,
// when next is non-empty, queues the updated charge on that list in the same
// transaction.
func SettleStuckCharge(ctx context.Context, client *redis.Client, claimed *ClaimedCharge, next string) error {
	var payload []byte
	if next != "" {
		var err error
		if payload, err = json.Marshal(claimed.StuckCharge); err != nil {
			return err
		}
	}
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if next != "" {
			pipe.RPush(ctx, next, payload)
		}
		pipe.LRem(ctx, StuckChargesProcessingKey, 1, claimed.Raw)
		return nil
	})
	return err
}

// RequeueClaimed moves every charge left in the processing list, by a worker
// that stopped mid-flight, back to the queue. Run it before claiming.
func RequeueClaimed(ctx context.Context, client *redis.Client) (int, error) {
	moved := 0
	for {
		err := client.LMove(ctx, StuckChargesProcessingKey, StuckChargesKey, "LEFT", "RIGHT").Err()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// PushStuckCharge appends charge to the Redis list key.
func PushStuckCharge(ctx context.Context, client *redis.Client, key string, charge StuckCharge) error {
	payload, err := json.Marshal(charge)
	if err != nil {
		return err
	}
	return client.RPush(ctx, key, payload).Err()
}
