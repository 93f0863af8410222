package middleware

import (
	"net/http"
	"time"

	"github.com/vendorgate/vendorgate/pkg/contextkeys"
	"github.com/vendorgate/vendorgate/pkg/observability"
)

// statusRecorder captures the status code written by the handler
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

// Logging emits one structured line per request and records HTTP metrics.
// The logger is also placed in the request context so downstream code logs
// with the request id attached.
func Logging(logger *observability.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: 0}

			ctx := contextkeys.WithLogger(r.Context(), logger.WithRequest(r.Context()))
			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			if metrics != nil {
				metrics.ObserveHTTPRequest(r.Method, r.URL.Path, rec.status, duration)
			}

			entry := logger.WithRequest(r.Context()).WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": duration.Milliseconds(),
				"bytes":       rec.written,
				"remote_addr": r.RemoteAddr,
			})
			if rec.status >= 500 {
				entry.Error("request failed")
			} else {
				entry.Info("request completed")
			}
		})
	}
}

// Recovery converts handler panics into INTERNAL responses instead of
// tearing down the connection.
func Recovery(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithRequest(r.Context()).WithFields(map[string]interface{}{
						"panic":  rec,
						"method": r.Method,
						"path":   r.URL.Path,
					}).Error("handler panic recovered")
					http.Error(w, `{"ok":false,"error":{"code":"INTERNAL","message":"internal error"}}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
