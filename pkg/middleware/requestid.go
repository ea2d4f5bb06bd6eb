package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tessergrc/authcore/pkg/contextkeys"
)

// RequestIDHeader is echoed back so clients can correlate support
// requests with server logs.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an identifier, honoring one supplied
// by a trusted upstream proxy.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := contextkeys.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
