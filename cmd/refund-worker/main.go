package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/bannerforge/bannerforge-api/internal/config"
	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/pkg/database"
	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/metrics"
)

const (
	popTimeout   = 5 * time.Second
	maxAttempts  = 10
	retryBackoff = 30 * time.Second
)

type outcome int

const (
	refunded outcome = iota
	retry
	giveUp
)

// Refunder is the part of the ledger the worker needs.
type Refunder interface {
	Refund(ctx context.Context, userID, txID uuid.UUID, reason string) error
}

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	log.Info().Msg("Starting refund-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb == nil {
		log.Fatal().Msg("REDIS_URL is required: stuck charges are queued in Redis")
	}
	defer database.CloseRedis(rdb)

	ledger := credit.NewService(credit.NewRepository(db), credit.Limits{
		credit.TierFree: cfg.CreditsFreeDaily,
		credit.TierPro:  cfg.CreditsProDaily,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	if cfg.MetricsPort != "" {
		go serveMetrics(ctx, ":"+cfg.MetricsPort)
	}

	run(ctx, rdb, ledger, metrics.Default())
	log.Info().Msg("refund-worker stopped")
}

func run(ctx context.Context, rdb *redis.Client, ledger Refunder, m *metrics.Metrics) {
	var pending sync.WaitGroup
	defer pending.Wait()

	// One worker per queue: anything still claimed was left by our own
	// previous run.
	if n, err := generation.RequeueClaimed(ctx, rdb); err != nil {
		log.Error().Err(err).Msg("Failed to requeue claimed stuck charges")
	} else if n > 0 {
		log.Warn().Int("count", n).Msg("Requeued stuck charges from an interrupted run")
	}

	for ctx.Err() == nil {
		claimed, err := generation.ClaimStuckCharge(ctx, rdb, popTimeout)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("Failed to read stuck charges")
				sleep(ctx, popTimeout)
			}
			continue
		}
		if claimed == nil {
			continue
		}

		switch reconcile(ctx, ledger, &claimed.StuckCharge) {
		case refunded:
			m.Reconciliation(metrics.ResultRefunded)
			settle(ctx, rdb, claimed, "")
		case retry:
			m.Reconciliation(metrics.ResultRetry)
			// wait in the background so one bad charge does not stall the
			// queue; the claim keeps it safe until then
			pending.Add(1)
			go func(c *generation.ClaimedCharge) {
				defer pending.Done()
				sleep(ctx, retryBackoff)
				settle(ctx, rdb, c, generation.StuckChargesKey)
			}(claimed)
		case giveUp:
			m.Reconciliation(metrics.ResultDead)
			settle(ctx, rdb, claimed, generation.StuckChargesDeadKey)
		}
	}
}

func settle(ctx context.Context, rdb *redis.Client, claimed *generation.ClaimedCharge, next string) {
	if err := generation.SettleStuckCharge(context.WithoutCancel(ctx), rdb, claimed, next); err != nil {
		log.Error().Err(err).Str("transaction_id", claimed.TransactionID.String()).Msg("Failed to settle stuck charge")
	}
}

// reconcile retries one refund and decides what happens to the charge next.
// Attempts is incremented on charge.
func reconcile(ctx context.Context, ledger Refunder, charge *generation.StuckCharge) outcome {
	charge.Attempts++
	l := log.With().
		Str("user_id", charge.UserID.String()).
		Str("transaction_id", charge.TransactionID.String()).
		Int("attempts", charge.Attempts).
		Logger()

	err := ledger.Refund(ctx, charge.UserID, charge.TransactionID, charge.Reason)
	switch {
	case err == nil:
		l.Info().Msg("Stuck charge refunded")
		return refunded
	case errors.Is(err, credit.ErrTransactionNotFound):
		l.Error().Str("alert", "stuck_charge").Msg("Stuck charge has no transaction, needs manual reconciliation")
		return giveUp
	case charge.Attempts >= maxAttempts:
		charge.Error = err.Error()
		l.Error().Err(err).Str("alert", "stuck_charge").Msg("Giving up on stuck charge")
		return giveUp
	default:
		charge.Error = err.Error()
		l.Warn().Err(err).Msg("Refund retry failed")
		return retry
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
