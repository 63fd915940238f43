package generation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/middleware"
)

type memRecords struct {
	byID map[uuid.UUID]*generation.Record
}

func (m *memRecords) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*generation.Record, error) {
	out := []*generation.Record{}
	for _, r := range m.byID {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecords) GetByID(ctx context.Context, id uuid.UUID) (*generation.Record, error) {
	if r, ok := m.byID[id]; ok {
		return r, nil
	}
	return nil, generation.ErrNotFound
}

func asUser(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != uuid.Nil {
				r = r.WithContext(middleware.WithIdentity(r.Context(), userID, "free"))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newRouter(h *harness, userID uuid.UUID) chi.Router {
	handler := generation.NewHandler(h.svc)
	return handler.Routes(asUser(userID), asUser(userID))
}

func TestHandlerCreate(t *testing.T) {
	h := newHarness(t, nil)
	router := newRouter(h, uuid.New())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"spring collection launch","platform":"instagram"}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Fatalf("expected rate-limit headers, got %v", rec.Header())
	}
	var body struct {
		Success bool              `json:"success"`
		Data    generation.Result `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.Width != 1080 || body.Data.Asset.Provider == "" || body.Data.CreditsRemaining != 4 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestHandlerCreateAnonymous(t *testing.T) {
	h := newHarness(t, nil)
	router := newRouter(h, uuid.Nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"spring collection launch","platform":"instagram"}`)))
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "UNAUTHENTICATED") {
		t.Fatalf("expected 401 UNAUTHENTICATED, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerInsufficientCreditSetsRetryAfter(t *testing.T) {
	h := newHarness(t, nil)
	userID := uuid.New()
	router := newRouter(h, userID)

	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"spring collection launch","platform":"facebook"}`)))
		if i < 5 {
			continue
		}
		if rec.Code != http.StatusPaymentRequired {
			t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header")
		}
	}
}

func TestHandlerBadJSON(t *testing.T) {
	h := newHarness(t, nil)
	rec := httptest.NewRecorder()
	newRouter(h, uuid.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerGetOwnerOnly(t *testing.T) {
	owner, stranger := uuid.New(), uuid.New()
	rec := &generation.Record{ID: uuid.New(), UserID: owner, Platform: "youtube"}
	records := &memRecords{byID: map[uuid.UUID]*generation.Record{rec.ID: rec}}
	h := newHarness(t, func(h *harness) { h.deps.Records = records })

	w := httptest.NewRecorder()
	newRouter(h, owner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+rec.ID.String(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	newRouter(h, stranger).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+rec.ID.String(), nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("stranger: expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	newRouter(h, owner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), rec.ID.String()) {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
}
