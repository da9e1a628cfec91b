// Package auth verifies bearer JWTs on inbound requests (component E):
// signature, expiry, and an optional per-subject rate-limit override claim.
package auth

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the pipeline's Authenticated phase extracts from a valid
// bearer token.
type Claims struct {
	Subject       string
	ExpiresAt     int64
	RateLimitOverride int
}

// Verifier validates bearer JWTs signed with a single shared HMAC secret.
// The secret is held behind an atomic pointer so a config hot reload can
// swap it on the boundary of new requests (§6) without a lock on the
// read path.
type Verifier struct {
	secret         atomic.Pointer[[]byte]
	rateLimitClaim string
}

// NewVerifier constructs a Verifier. rateLimitClaim names the optional
// numeric claim carrying a per-subject rate-limit override; an empty name
// disables the override lookup.
func NewVerifier(secret, rateLimitClaim string) *Verifier {
	v := &Verifier{rateLimitClaim: rateLimitClaim}
	v.SetSecret(secret)
	return v
}

// SetSecret atomically swaps the signing secret used to validate new
// requests; any request already past signature verification is unaffected.
func (v *Verifier) SetSecret(secret string) {
	b := []byte(secret)
	v.secret.Store(&b)
}

// ExtractBearerToken pulls the token out of an Authorization header,
// requiring the "Bearer " scheme per §6.
func ExtractBearerToken(authHeader string) (string, bool) {
	const prefix = "bearer "
	if len(authHeader) <= len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// Verify checks the token's signature and expiry and returns its claims.
// Any failure — malformed token, bad signature, expired, missing sub — is
// reported as a single AuthFailure by the caller; this function only
// distinguishes success from failure, not the specific cause, matching
// §7's single AuthFailure->401 mapping.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return *v.secret.Load(), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("missing sub claim")
	}

	out := &Claims{Subject: sub}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = int64(exp)
	}
	if v.rateLimitClaim != "" {
		if rl, ok := claims[v.rateLimitClaim].(float64); ok {
			out.RateLimitOverride = int(rl)
		}
	}
	return out, nil
}
