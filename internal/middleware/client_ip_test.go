package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func trust(t *testing.T, entries ...string) {
	t.Helper()
	if err := TrustProxies(entries); err != nil {
		t.Fatalf("trust proxies: %v", err)
	}
	t.Cleanup(func() { _ = TrustProxies(nil) })
}

func TestClientIPIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	trust(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5123"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	req.Header.Set("X-Real-IP", "198.51.100.2")

	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected socket peer, got %q", got)
	}
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	trust(t, "10.0.0.0/8", "192.0.2.1")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:443"

	// The leftmost hop is client supplied and may be forged.
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 198.51.100.1, 192.0.2.1")
	if got := ClientIP(req); got != "198.51.100.1" {
		t.Fatalf("expected rightmost untrusted hop, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.9")
	if got := ClientIP(req); got != "198.51.100.9" {
		t.Fatalf("expected X-Real-IP from trusted proxy, got %q", got)
	}

	req.Header.Del("X-Real-IP")
	if got := ClientIP(req); got != "10.1.2.3" {
		t.Fatalf("expected proxy address without headers, got %q", got)
	}
}

func TestTrustProxiesRejectsGarbage(t *testing.T) {
	if err := TrustProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for bad entry")
	}
	if err := TrustProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatal("expected error for bad CIDR")
	}
}
