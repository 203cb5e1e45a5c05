package middleware

import (
	"net/http"
)

// MaxRequestSize is the largest request body the API accepts. Post content is the biggest payload.
const MaxRequestSize = 10 << 20

// RequestSizeLimitMiddleware rejects bodies over maxRequestSize bytes.
// Declared lengths are refused up front; chunked bodies fail on read with *http.MaxBytesError.
func RequestSizeLimitMiddleware(maxRequestSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxRequestSize {
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
			next.ServeHTTP(w, r)
		})
	}
}
