package middleware

import (
	"crypto/subtle"
	"net/http"
)

const ServiceKeyHeader = "X-Service-Key"

// RequireServiceKey guards machine routes with the service-role key. When no
// key is configured the routes answer 503 rather than falling open.
func RequireServiceKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				respondWithError(w, http.StatusServiceUnavailable, "service key not configured")
				return
			}
			presented := r.Header.Get(ServiceKeyHeader)
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				respondWithError(w, http.StatusUnauthorized, "invalid service key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
