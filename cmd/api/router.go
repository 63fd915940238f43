package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/config"
	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/domain/progress"
	"github.com/bannerforge/bannerforge-api/internal/domain/ratelimit"
	"github.com/bannerforge/bannerforge-api/internal/middleware"
	"github.com/bannerforge/bannerforge-api/internal/pkg/errorhandler"
	"github.com/bannerforge/bannerforge-api/internal/pkg/jwt"
	"github.com/bannerforge/bannerforge-api/internal/pkg/metrics"
	pkgresponse "github.com/bannerforge/bannerforge-api/internal/pkg/response"
	"github.com/bannerforge/bannerforge-api/internal/pkg/validator"
)

type routerDeps struct {
	jwt         *jwt.Service
	credits     *credit.Handler
	generations *generation.Handler
	progress    *progress.Handler
	authLimiter *ratelimit.Limiter
	// health reports dependency state; nil means no dependencies to check
	health func(ctx context.Context) (map[string]string, bool)
}

func newRouter(cfg *config.Config, d routerDeps) http.Handler {
	authMiddleware := middleware.Auth(d.jwt)
	optionalAuth := middleware.OptionalAuth(d.jwt)

	r := chi.NewRouter()

	// Client addresses come from middleware.ClientIP, which only believes
	// forwarding headers from trusted proxies.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress); the token may come as ?token=
	r.With(authMiddleware).Get("/ws/generations", d.progress.WebSocket)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Get("/health", healthHandler(d.health))
		r.Handle("/metrics", metrics.Handler())

		r.Route("/api/v1", func(r chi.Router) {
			r.Mount("/generations", d.generations.Routes(authMiddleware, optionalAuth))
			r.Mount("/credits", d.credits.Routes(authMiddleware))

			if cfg.IsDevelopment() {
				r.With(ratelimit.Middleware(d.authLimiter, middleware.ClientIP)).
					Post("/dev/token", devTokenHandler(d.jwt))
			}
		})

		if cfg.StorageDriver == "local" {
			fs := http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.LocalStoragePath)))
			r.Get("/assets/*", fs.ServeHTTP)
		}
	})

	return r
}

type devTokenRequest struct {
	UserID string `json:"user_id" validate:"omitempty,uuid"`
	Tier   string `json:"tier" validate:"omitempty,oneof=free pro"`
}

// devTokenHandler mints access tokens for local testing. Sessions are
// otherwise issued by the auth service.
func devTokenHandler(jwtService *jwt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req devTokenRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				pkgresponse.BadRequest(w, "Invalid JSON body")
				return
			}
		}

		req.Tier = strings.TrimSpace(req.Tier)
		if errs := validator.Validate(&req); errs != nil {
			errorhandler.HandleValidation(r.Context(), w, errs)
			return
		}

		userID := uuid.New()
		if req.UserID != "" {
			userID = uuid.MustParse(req.UserID)
		}
		tier := string(credit.ParseTier(req.Tier))

		token, err := jwtService.GenerateAccessToken(userID, tier)
		if err != nil {
			pkgresponse.InternalError(w)
			return
		}

		pkgresponse.Created(w, map[string]interface{}{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int(jwtService.GetAccessTTL().Seconds()),
			"user_id":      userID,
			"tier":         tier,
		})
	}
}

func healthHandler(check func(ctx context.Context) (map[string]string, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ok", "version": "1.0.0"}
		if check == nil {
			pkgresponse.OK(w, body)
			return
		}

		deps, healthy := check(r.Context())
		body["dependencies"] = deps
		if !healthy {
			body["status"] = "degraded"
			pkgresponse.JSON(w, http.StatusServiceUnavailable, body)
			return
		}
		pkgresponse.OK(w, body)
	}
}
