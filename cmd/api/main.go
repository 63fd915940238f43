package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bannerforge/bannerforge-api/internal/config"
	"github.com/bannerforge/bannerforge-api/internal/domain/asset"
	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/domain/planner"
	"github.com/bannerforge/bannerforge-api/internal/domain/progress"
	"github.com/bannerforge/bannerforge-api/internal/domain/ratelimit"
	"github.com/bannerforge/bannerforge-api/internal/domain/safety"
	"github.com/bannerforge/bannerforge-api/internal/middleware"
	"github.com/bannerforge/bannerforge-api/internal/pkg/database"
	"github.com/bannerforge/bannerforge-api/internal/pkg/jwt"
	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/openai"
	"github.com/bannerforge/bannerforge-api/internal/pkg/pollinations"
	"github.com/bannerforge/bannerforge-api/internal/pkg/storage"
	"github.com/bannerforge/bannerforge-api/internal/pkg/unsplash"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Bannerforge API")

	if err := middleware.TrustProxies(cfg.TrustedProxies); err != nil {
		log.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	store, err := storage.New(storage.Config{
		Driver: cfg.StorageDriver,
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		},
		S3Endpoint:  cfg.S3Endpoint,
		S3Region:    cfg.S3Region,
		S3AccessKey: cfg.S3AccessKey,
		S3SecretKey: cfg.S3SecretKey,
		S3Bucket:    cfg.S3Bucket,
		LocalPath:   cfg.LocalStoragePath,
		LocalURL:    cfg.LocalStorageURL,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("Failed to create asset storage")
	}

	// ---------- Ledger ----------
	creditService := credit.NewService(credit.NewRepository(db), credit.Limits{
		credit.TierFree: cfg.CreditsFreeDaily,
		credit.TierPro:  cfg.CreditsProDaily,
	})

	// ---------- Rate limiting ----------
	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient)
	} else {
		log.Warn().Msg("REDIS_URL not set, rate limits are per instance")
	}
	limiters := mustLimiters(cfg, limitStore)

	// ---------- Generation ----------
	hub := progress.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	genRepo := generation.NewRepository(db)
	genService := generation.NewService(generation.Deps{
		Maintenance: generation.NewMaintenanceSwitch(cfg.MaintenanceMode, redisClient),
		Limiter: ratelimit.NewSet(
			ratelimit.Rule{Limiter: limiters[ratelimit.GenerateUser], Key: ratelimit.ByUser},
			ratelimit.Rule{Limiter: limiters[ratelimit.GenerateIP], Key: ratelimit.ByIP},
			ratelimit.Rule{Limiter: limiters[ratelimit.GenerateDevice], Key: ratelimit.ByDevice},
		),
		Safety:   buildGate(cfg),
		Ledger:   creditService,
		Planner:  planner.New(openAIClient(cfg)),
		Assets:   buildChain(cfg, store),
		Sink:     genRepo,
		Records:  genRepo,
		Alerter:  generation.NewAlerter(redisClient),
		Observer: hub,
	}, generation.Timeouts{
		Safety:   cfg.TimeoutSafety,
		Planner:  cfg.TimeoutPlanner,
		Persist:  cfg.TimeoutPersist,
		Pipeline: cfg.TimeoutPipeline,
	})

	router := newRouter(cfg, routerDeps{
		jwt:         jwtService,
		credits:     credit.NewHandler(creditService),
		generations: generation.NewHandler(genService),
		progress:    progress.NewHandler(hub, cfg.AllowedOrigins),
		authLimiter: limiters[ratelimit.AuthIP],
		health: func(ctx context.Context) (map[string]string, bool) {
			return database.Check(ctx, db, redisClient)
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TimeoutPipeline + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// let fire-and-forget inserts land before the pool closes
	genService.Wait()

	log.Info().Msg("Server exited properly")
}

func mustLimiters(cfg *config.Config, store ratelimit.Store) map[string]*ratelimit.Limiter {
	raw := map[string]string{
		ratelimit.GenerateUser:   cfg.RateLimitUser,
		ratelimit.GenerateIP:     cfg.RateLimitIP,
		ratelimit.GenerateDevice: cfg.RateLimitDevice,
		ratelimit.AuthIP:         cfg.RateLimitAuth,
	}

	limiters := make(map[string]*ratelimit.Limiter, len(raw))
	for name, spec := range raw {
		limit, err := ratelimit.ParseLimit(name, spec)
		if err != nil {
			log.Fatal().Err(err).Str("limiter", name).Str("value", spec).Msg("Invalid rate limit")
		}
		limiters[name] = ratelimit.NewLimiter(limit, store)
		log.Info().Str("limiter", name).Str("limit", limit.String()).Msg("Rate limiter configured")
	}
	return limiters
}

func openAIClient(cfg *config.Config) *openai.Client {
	return openai.NewClient(openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		TextModel:  cfg.OpenAITextModel,
		ImageModel: cfg.OpenAIImageModel,
		Timeout:    cfg.TimeoutProvider,
	})
}

func buildGate(cfg *config.Config) *safety.Gate {
	if !cfg.AIEnabled() {
		log.Warn().Msg("OPENAI_API_KEY not set, content safety runs the local detector only")
		return safety.NewGate(nil)
	}
	return safety.NewGate(safety.NewModerationClassifier(openAIClient(cfg)))
}

// buildChain orders the background tiers: stock photo, synthesis, keyless
// synthesis, then the gradient renderer.
func buildChain(cfg *config.Config, store storage.Storage) *asset.Chain {
	var providers []asset.Provider

	stock := unsplash.NewClient(cfg.UnsplashBaseURL, cfg.UnsplashAccessKey, cfg.TimeoutProvider)
	if stock.Configured() {
		providers = append(providers, asset.NewStockProvider(stock))
	}
	if cfg.AIEnabled() {
		providers = append(providers, asset.NewSynthesisProvider(openAIClient(cfg), store))
	}
	providers = append(providers, asset.NewPollinationsProvider(pollinations.New(cfg.PollinationsBaseURL)))

	chain := asset.NewChain(cfg.TimeoutProvider, asset.NewGradientProvider(store), providers...)
	log.Info().Strs("providers", chain.Providers()).Msg("Asset chain configured")
	return chain
}
