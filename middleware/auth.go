package middleware

import (
	"context"
	"net/http"

	"polotno-studio/core"

	"github.com/go-chi/render"
)

type contextKey string

const UserContextKey = contextKey("user")

// RequireSignedIn rejects requests while the account is signed out and puts
// the signed-in user on the request context.
func RequireSignedIn(account core.Account) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := account.User()
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Sign in required"})
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the user stored by RequireSignedIn.
func UserFrom(ctx context.Context) (core.User, bool) {
	user, ok := ctx.Value(UserContextKey).(core.User)
	return user, ok
}
