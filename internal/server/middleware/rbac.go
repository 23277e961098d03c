package middleware

import (
	"net/http"
	"strings"
)

// Role constants mirror the task backend's user roles.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// NormalizeRole maps the role claim onto the role constants. The backend may
// emit the bare value ("ADMIN") or the qualified enum name ("UserRole.ADMIN").
func NormalizeRole(role string) string {
	if i := strings.LastIndexByte(role, '.'); i >= 0 {
		role = role[i+1:]
	}
	return strings.ToUpper(strings.TrimSpace(role))
}

// RequireRole returns middleware that checks if the authenticated user has one
// of the allowed roles. It must be chained after the Auth middleware.
//
// Returns 401 Unauthorized when no user is found in context and 403 Forbidden
// when the user role does not match any of the allowed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || role == "" {
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"authentication required"}`, http.StatusUnauthorized)
				return
			}

			if _, match := allowed[role]; !match {
				http.Error(w, `{"title":"Forbidden","status":403,"detail":"insufficient permissions"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is a convenience wrapper for RequireRole(RoleAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(RoleAdmin)
}
