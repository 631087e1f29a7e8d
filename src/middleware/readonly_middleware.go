package middleware

import (
	"net/http"
	"strings"
)

// ReadOnlyModeMiddleware refuses every mutating request except validation,
// which only previews a spend. Admins are let through.
func ReadOnlyModeMiddleware(readOnly bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !readOnly || r.Method == http.MethodGet || IsAdmin(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/validate") {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Read-only mode: only GET requests and validation are allowed", http.StatusForbidden)
		})
	}
}
