// Package requestid assigns each request a correlation ID and echoes it back
// in the X-Request-ID response header.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"palisade/pkg/requestcontext"
)

const Header = "X-Request-ID"

// RequestID reuses an inbound X-Request-ID when present, otherwise mints a
// UUID. The ID lands in the request context and the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
