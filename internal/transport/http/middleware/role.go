package middleware

import (
	"net/http"
)

// RequireAdmin allows access only to bearers whose role carries admin
// privileges. Services behind it still re-check against the identity store,
// so a revoked admin is rejected even with a not-yet-expired token.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !claims.Role.IsAdmin() {
			writeJSONError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
