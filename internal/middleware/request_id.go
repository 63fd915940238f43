package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing the caller's X-Request-ID
// when it looks sane. The id is echoed back and attached to the request logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.New().String()
			r.Header.Set(requestIDHeader, requestID)
		}
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), requestID)))
	})
}

// inbound ids end up in logs and stuck-charge alerts
func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
