package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/config"
	"github.com/bannerforge/bannerforge-api/internal/domain/asset"
	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/domain/planner"
	"github.com/bannerforge/bannerforge-api/internal/domain/progress"
	"github.com/bannerforge/bannerforge-api/internal/domain/ratelimit"
	"github.com/bannerforge/bannerforge-api/internal/domain/safety"
	"github.com/bannerforge/bannerforge-api/internal/pkg/jwt"
	"github.com/bannerforge/bannerforge-api/internal/pkg/openai"
)

func testRouter(t *testing.T, env string) (http.Handler, *jwt.Service) {
	t.Helper()
	cfg := &config.Config{Env: env, StorageDriver: "r2"}
	jwtService := jwt.NewService("test-secret", time.Minute)
	store := ratelimit.NewMemoryStore()

	credits := credit.NewService(credit.NewMemoryRepository(), credit.Limits{credit.TierFree: 5})
	genService := generation.NewService(generation.Deps{
		Limiter: ratelimit.NewSet(ratelimit.Rule{
			Limiter: ratelimit.NewLimiter(ratelimit.MustParseLimit(ratelimit.GenerateUser, "10/1m"), store),
			Key:     ratelimit.ByUser,
		}),
		Safety:  safety.NewGate(nil),
		Ledger:  credits,
		Planner: planner.New(openai.NewClient(openai.Config{})),
		Assets:  asset.NewChain(time.Second, nil),
	}, generation.Timeouts{})

	hub := progress.NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	return newRouter(cfg, routerDeps{
		jwt:         jwtService,
		credits:     credit.NewHandler(credits),
		generations: generation.NewHandler(genService),
		progress:    progress.NewHandler(hub, nil),
		authLimiter: ratelimit.NewLimiter(ratelimit.MustParseLimit(ratelimit.AuthIP, "2/1h"), store),
	}), jwtService
}

func TestHealth(t *testing.T) {
	router, _ := testRouter(t, "production")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestHealthDegraded(t *testing.T) {
	h := healthHandler(func(ctx context.Context) (map[string]string, bool) {
		return map[string]string{"postgres": "up", "redis": "down"}, false
	})
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"degraded"`) {
		t.Fatalf("expected degraded status, got %s", rr.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	router, _ := testRouter(t, "production")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bannerforge_progress_connections") {
		t.Fatalf("expected service metrics, got %s", rr.Body.String())
	}
}

func TestRequestIDReusedWhenSane(t *testing.T) {
	router, _ := testRouter(t, "production")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected caller id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got == "" || strings.Contains(got, " ") {
		t.Fatalf("expected generated id, got %q", got)
	}
}

func TestCreditsRequireAuth(t *testing.T) {
	router, jwtService := testRouter(t, "production")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	token, _ := jwtService.GenerateAccessToken(uuid.New(), "free")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"remaining":5`) {
		t.Fatalf("expected balance, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGenerateAnonymousIsUnauthenticated(t *testing.T) {
	router, _ := testRouter(t, "production")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/generations", strings.NewReader(`{"prompt":"launch day","platform":"youtube"}`)))
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "UNAUTHENTICATED") {
		t.Fatalf("expected UNAUTHENTICATED, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGeneratePlannerDownIsRefunded(t *testing.T) {
	router, jwtService := testRouter(t, "production")
	token, _ := jwtService.GenerateAccessToken(uuid.New(), "free")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations", strings.NewReader(`{"prompt":"launch day","platform":"youtube"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "PLANNING_FAILED") {
		t.Fatalf("expected PLANNING_FAILED, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if !strings.Contains(rr.Body.String(), `"remaining":5`) {
		t.Fatalf("expected refunded balance, got %s", rr.Body.String())
	}
}

func TestDevTokenOnlyInDevelopment(t *testing.T) {
	router, _ := testRouter(t, "production")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/dev/token", nil))
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected dev token route to be absent, got %d", rr.Code)
	}
}

func TestDevTokenRateLimited(t *testing.T) {
	router, jwtService := testRouter(t, "development")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/dev/token", strings.NewReader(`{"tier":"pro"}`)))
		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d: %s", i, rr.Code, rr.Body.String())
		}
		var body struct {
			Data struct {
				AccessToken string `json:"access_token"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		claims, err := jwtService.ValidateAccessToken(body.Data.AccessToken)
		if err != nil || claims.Tier != "pro" {
			t.Fatalf("bad token: %v %+v", err, claims)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/dev/token", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}
}
