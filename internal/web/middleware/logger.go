package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-search/internal/logging"
)

// RequestLogger logs one structured line per request after it completes.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chiMiddleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			}
			if status >= http.StatusInternalServerError {
				logging.Warnw("request failed", fields...)
				return
			}
			logging.Infow("request", fields...)
		}()

		next.ServeHTTP(ww, r)
	})
}
