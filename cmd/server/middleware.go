// Package main is the entry point of the application
package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/trpgtools/dice-server/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// authenticate verifies the bearer credential before the handler runs and
// stashes the resulting identity in the request context.
func (app *application) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := app.Verifier.Verify(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			app.Logger.Warn(
				"Authentication failed",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}
