package auth

import (
	"context"
	"net/http"
	"strings"
)

// Role names carried in the JWT "role" claim.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// IsAdmin reports whether the context carries the admin role.
func IsAdmin(ctx context.Context) bool {
	role, _ := RoleFromContext(ctx)
	return strings.EqualFold(strings.TrimSpace(role), RoleAdmin)
}

// IsModerator reports whether the context carries moderator rights.
// Admins moderate implicitly.
func IsModerator(ctx context.Context) bool {
	role, _ := RoleFromContext(ctx)
	role = strings.ToLower(strings.TrimSpace(role))
	return role == RoleModerator || role == RoleAdmin
}

// RequireAdmin allows the request only if RequireUser already injected role=admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireModerator allows moderators and admins.
func RequireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsModerator(r.Context()) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
