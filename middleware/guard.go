package middleware

import (
	"context"
	"net/http"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

type userContextKey struct{}

// UserFromContext returns the user injected by the guards.
func UserFromContext(ctx context.Context) (goAuthClient.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(goAuthClient.User)
	return u, ok
}

// RequireAuthenticated answers 401 unless m holds a login (or speed mode).
func RequireAuthenticated(m *goAuthClient.Manager) func(http.Handler) http.Handler {
	return Guard(m, nil)
}

// RequirePermission answers 403 unless the user holds every perm. The
// denial is announced on the bus as authz:permission-denied.
func RequirePermission(m *goAuthClient.Manager, perms ...string) func(http.Handler) http.Handler {
	return Guard(m, func(r *http.Request) error {
		return m.Gate().Require(perms...)
	})
}

// RequireRoute answers 403 unless the request path is an accessible route.
func RequireRoute(m *goAuthClient.Manager) func(http.Handler) http.Handler {
	return Guard(m, func(r *http.Request) error {
		return m.Gate().RequireRoute(r.URL.Path)
	})
}

// Guard answers 401 while signed out and 403 when check fails. A nil check
// only requires authentication.
func Guard(m *goAuthClient.Manager, check func(*http.Request) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || !m.IsAuthenticated() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if check != nil {
				if err := check(r); err != nil {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			ctx := r.Context()
			if u, ok := m.User(); ok {
				ctx = context.WithValue(ctx, userContextKey{}, u)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
