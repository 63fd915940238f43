package credit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/middleware"
)

func TestHandlerBalanceAndTransactions(t *testing.T) {
	svc, _, _ := newService(t)
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		if _, err := svc.Deduct(context.Background(), userID, credit.TierFree, "generation"); err != nil {
			t.Fatalf("deduct: %v", err)
		}
	}

	asUser := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), userID, "free")))
		})
	}
	router := credit.NewHandler(svc).Routes(asUser)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data credit.Balance `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Remaining != 2 || body.Data.Limit != 5 {
		t.Fatalf("unexpected balance %+v", body.Data)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions?limit=2", nil))
	var page struct {
		Data []credit.CreditTransaction `json:"data"`
		Meta struct {
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Data) != 2 || !page.Meta.HasNext {
		t.Fatalf("expected 2 rows with next page, got %d rows has_next=%v", len(page.Data), page.Meta.HasNext)
	}
}

func TestHandlerRequiresIdentity(t *testing.T) {
	svc, _, _ := newService(t)
	passthrough := func(next http.Handler) http.Handler { return next }
	router := credit.NewHandler(svc).Routes(passthrough)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
