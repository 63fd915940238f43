package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestErrorWithRetrySetsHeaderAndBody(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorWithRetry(rr, http.StatusTooManyRequests, "ADMISSION_DENIED", "slow down", 1500*time.Millisecond, map[string]string{"limiter": "generate:user"})

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	var out Response
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Success || out.Error == nil {
		t.Fatalf("expected error envelope, got %+v", out)
	}
	if out.Error.RetryAfter != 2 || out.Error.Details["limiter"] != "generate:user" {
		t.Fatalf("unexpected error info: %+v", out.Error)
	}
}

func TestErrorWithRetryOmitsZero(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorWithRetry(rr, http.StatusServiceUnavailable, "UNAVAILABLE", "down", 0, nil)
	if rr.Header().Get("Retry-After") != "" {
		t.Fatal("expected no Retry-After header")
	}
}

func TestOKEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, map[string]string{"status": "ok"})

	var out struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Success || out.Data["status"] != "ok" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}
