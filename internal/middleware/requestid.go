// Package middleware provides HTTP middleware for the Teamline core service.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/teamline/teamline/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an id, taking a client-supplied
// X-Request-ID when present and generating one otherwise. The id travels in
// the context for log correlation and is echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = newRequestID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID returns 16 random bytes as a 32-char hex string.
func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
