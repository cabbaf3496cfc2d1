package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var allowedIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleVerifier validates ID tokens with a tagged strategy chain: signature
// verification against the remote key set first, then a remote introspection
// call on any failure. Both strategies require the configured client ID as
// audience.
type GoogleVerifier struct {
	clientID     string
	jwksURL      string
	tokenInfoURL string
	client       *http.Client
	logger       *zap.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewGoogleVerifier creates a verifier for the given client ID and endpoints.
func NewGoogleVerifier(clientID, jwksURL, tokenInfoURL string, logger *zap.Logger) *GoogleVerifier {
	return &GoogleVerifier{
		clientID:     clientID,
		jwksURL:      jwksURL,
		tokenInfoURL: tokenInfoURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		keys:         make(map[string]*rsa.PublicKey),
	}
}

// Verify resolves a bearer credential to an identity or ErrUnauthorized.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return Identity{}, ErrUnauthorized
	}
	raw = strings.TrimPrefix(raw, "Bearer ")

	identity, err := v.verifyWithKeySet(ctx, raw)
	if err == nil {
		return identity, nil
	}
	v.logger.Debug("key-set verification failed, falling back to introspection", zap.Error(err))

	identity, err = v.verifyWithTokenInfo(ctx, raw)
	if err != nil {
		v.logger.Debug("introspection verification failed", zap.Error(err))
		return Identity{}, ErrUnauthorized
	}
	return identity, nil
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (v *GoogleVerifier) verifyWithKeySet(ctx context.Context, raw string) (Identity, error) {
	var claims idTokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no key id")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	issuerOK := false
	for _, iss := range allowedIssuers {
		if claims.Issuer == iss {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return Identity{}, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}

	return identityFrom(claims.Subject, claims.Name, claims.Email)
}

type tokenInfoResponse struct {
	Aud   string `json:"aud"`
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (v *GoogleVerifier) verifyWithTokenInfo(ctx context.Context, raw string) (Identity, error) {
	endpoint := v.tokenInfoURL + "?id_token=" + url.QueryEscape(raw)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build introspection request: %w", err)
	}

	res, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("introspection request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("introspection status %d", res.StatusCode)
	}

	var payload tokenInfoResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("decode introspection response: %w", err)
	}
	if payload.Aud != v.clientID {
		return Identity{}, fmt.Errorf("audience mismatch")
	}
	return identityFrom(payload.Sub, payload.Name, payload.Email)
}

func identityFrom(sub, name, email string) (Identity, error) {
	if sub == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	userName := name
	if userName == "" {
		userName = email
	}
	if userName == "" {
		userName = "Guest"
	}
	return Identity{UserID: sub, UserName: userName}, nil
}

// key returns the RSA public key for kid, refreshing the cached key set when
// the kid is unknown.
func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *GoogleVerifier) refreshKeys(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if time.Since(v.fetchedAt) < 30*time.Second && len(v.keys) > 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build key-set request: %w", err)
	}
	res, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch key set: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("key-set status %d", res.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKeyFrom(k.N, k.E)
		if err != nil {
			v.logger.Warn("skipping malformed key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}

	v.keys = keys
	v.fetchedAt = time.Now()
	return nil
}

func rsaKeyFrom(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exponent := 0
	for _, b := range eBytes {
		exponent = exponent<<8 | int(b)
	}
	if exponent == 0 {
		return nil, fmt.Errorf("zero exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: exponent}, nil
}
