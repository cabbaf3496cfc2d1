// Package auth verifies bearer credentials against the identity provider.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// ErrUnauthorized indicates the credential is missing, invalid, expired, or
// carries the wrong audience. Callers must refuse the request before any
// side effect.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the verified user bound to a connection.
type Identity struct {
	UserID   string
	UserName string
}

// Verifier exposes the single verification capability.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenFromRequest extracts the bearer credential from an upgrade request,
// in precedence order: query parameter, subprotocol header, authorization
// header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("idToken"); token != "" {
		return token
	}
	if token := r.Header.Get("Sec-WebSocket-Protocol"); token != "" {
		return token
	}
	return r.Header.Get("Authorization")
}
