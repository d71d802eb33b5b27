package middleware

import (
	"net/http"
	"strings"
)

// LimitJSONBody caps non-multipart request bodies at max bytes. Multipart
// uploads are bounded by their own handler.
func LimitJSONBody(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if max > 0 && r.Body != nil && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}
