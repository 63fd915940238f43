package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/response"
)

// Recover turns a handler panic into a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can drop the connection quietly.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.FromContext(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("error_code", "INTERNAL_ERROR").
				Msg("Handler panicked")

			// websocket upgrades have already hijacked the connection
			if r.Header.Get("Upgrade") != "" {
				return
			}
			response.InternalError(w)
		}()

		next.ServeHTTP(w, r)
	})
}
