package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testClientID = "client-123"
const testKid = "key-1"

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func jwksHandler(t *testing.T, key *rsa.PrivateKey) http.HandlerFunc {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKid,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString([]byte{1, 0, 1}),
		}},
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(doc)
	}
}

func rejectingTokenInfo(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusBadRequest)
}

func newVerifier(t *testing.T, jwks, tokenInfo http.HandlerFunc) *GoogleVerifier {
	t.Helper()
	jwksSrv := httptest.NewServer(jwks)
	t.Cleanup(jwksSrv.Close)
	infoSrv := httptest.NewServer(tokenInfo)
	t.Cleanup(infoSrv.Close)
	return NewGoogleVerifier(testClientID, jwksSrv.URL, infoSrv.URL, zap.NewNop())
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims idTokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() idTokenClaims {
	return idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "sub-1",
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Alice",
		Email: "alice@example.com",
	}
}

func TestVerifyValidToken(t *testing.T) {
	key := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	identity, err := v.Verify(context.Background(), signToken(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "sub-1", UserName: "Alice"}, identity)
}

func TestVerifyStripsBearerPrefix(t *testing.T) {
	key := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	identity, err := v.Verify(context.Background(), "Bearer "+signToken(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "sub-1", identity.UserID)
}

func TestVerifyNameFallsBackToEmail(t *testing.T) {
	key := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	claims := validClaims()
	claims.Name = ""
	identity, err := v.Verify(context.Background(), signToken(t, key, claims))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", identity.UserName)

	claims.Email = ""
	identity, err = v.Verify(context.Background(), signToken(t, key, claims))
	require.NoError(t, err)
	assert.Equal(t, "Guest", identity.UserName)
}

func TestVerifyEmptyToken(t *testing.T) {
	key := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = v.Verify(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyWrongAudience(t *testing.T) {
	key := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	claims := validClaims()
	claims.Audience = jwt.ClaimStrings{"someone-else"}
	_, err := v.Verify(context.Background(), signToken(t, key, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyExpiredToken(t *testing.T) {
	key := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err := v.Verify(context.Background(), signToken(t, key, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyWrongIssuer(t *testing.T) {
	key := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	claims := validClaims()
	claims.Issuer = "https://evil.example"
	_, err := v.Verify(context.Background(), signToken(t, key, claims))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyForgedSignature(t *testing.T) {
	key := newSigningKey(t)
	otherKey := newSigningKey(t)
	v := newVerifier(t, jwksHandler(t, key), rejectingTokenInfo)

	_, err := v.Verify(context.Background(), signToken(t, otherKey, validClaims()))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// Opaque credentials that are not parseable JWTs still resolve through the
// introspection endpoint.
func TestVerifyIntrospectionFallback(t *testing.T) {
	var gotToken string
	tokenInfo := func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("id_token")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"aud":  testClientID,
			"sub":  "sub-9",
			"name": "Bob",
		})
	}
	v := newVerifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, tokenInfo)

	identity, err := v.Verify(context.Background(), "opaque-credential")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "sub-9", UserName: "Bob"}, identity)
	assert.Equal(t, "opaque-credential", gotToken)
}

func TestVerifyIntrospectionAudienceMismatch(t *testing.T) {
	tokenInfo := func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"aud": "someone-else",
			"sub": "sub-9",
		})
	}
	v := newVerifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, tokenInfo)

	_, err := v.Verify(context.Background(), "opaque-credential")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenFromRequestPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?idToken="+url.QueryEscape("from-query"), nil)
	r.Header.Set("Sec-WebSocket-Protocol", "from-subprotocol")
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-query", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "from-subprotocol")
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-subprotocol", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "Bearer from-header", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Equal(t, "", TokenFromRequest(r))
}
