// Package middleware holds the edge HTTP middleware: request id assignment,
// structured request logging, panic recovery, and rate limiting. The
// authorization chain itself lives in pkg/policy.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vendorgate/vendorgate/pkg/contextkeys"
)

// RequestIDHeader is the header a caller (or an upstream proxy) may supply
// to correlate requests; absent, a fresh UUID is assigned.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a correlation id, echoed back in the
// response header and carried in the context for logs, audit events, and
// error envelopes.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := contextkeys.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
