package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog/log"
)

// CognitoJWKSURL derives the well-known JWKS endpoint for a user pool.
func CognitoJWKSURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, userPoolID)
}

// KeySetCache holds the identity provider's signing keys, fetched lazily from
// the JWKS endpoint and cached for keySetTTL. There is one instance per
// process, shared by all requests.
//
// Refresh replaces the whole kid-to-key map under the lock; the fetch itself
// happens outside it, so concurrent readers never observe a half-updated set
// and are never blocked on the network.
type KeySetCache struct {
	jwksURL    string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

const keySetTTL = 1 * time.Hour

// NewKeySetCache creates a key set cache for the given JWKS URL. If httpClient
// is nil, a caching client is used so that provider Cache-Control headers are
// honoured across refreshes.
func NewKeySetCache(jwksURL string, httpClient *http.Client) *KeySetCache {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: httpcache.NewTransport(httpcache.NewMemoryCache()),
			Timeout:   10 * time.Second,
		}
	}

	return &KeySetCache{
		jwksURL:    jwksURL,
		httpClient: httpClient,
		ttl:        keySetTTL,
	}
}

// GetKey returns the public key for the given key ID.
//
// A kid already present in a fresh cache is returned without a network call.
// Otherwise the full set is fetched once more; this covers key rotation, where
// a stale cache predates the rotated key. A kid still absent from the freshly
// fetched set yields ErrKeyNotFound rather than further fetching.
func (c *KeySetCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := time.Now().Before(c.expiresAt)
	c.mu.RUnlock()

	if ok && fresh {
		log.Debug().Str("kid", kid).Msg("key set cache hit")
		return key, nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.keys = keys
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()

	log.Info().Int("total_keys", len(keys)).Msg("cached key set")

	key, ok = keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Invalidate drops the cached key set so the next GetKey fetches again.
func (c *KeySetCache) Invalidate() {
	c.mu.Lock()
	c.keys = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// fetch retrieves and parses the full key set, retrying transient failures
// with bounded exponential backoff. Client errors from the provider are not
// retried.
func (c *KeySetCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	keys, err := backoff.Retry(ctx, func() (map[string]*rsa.PublicKey, error) {
		return c.fetchOnce(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, err)
	}
	return keys, nil
}

func (c *KeySetCache) fetchOnce(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	log.Debug().Str("jwks_url", c.jwksURL).Msg("fetching key set")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create JWKS request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("JWKS request failed: %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode JWKS: %w", err))
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, jwk := range jwks.Keys {
		key, err := parseRSAJWK(jwk)
		if err != nil {
			log.Warn().Err(err).Interface("jwk", jwk).Msg("failed to parse JWK")
			continue
		}

		kid, ok := jwk["kid"].(string)
		if !ok {
			log.Warn().Msg("JWK missing kid")
			continue
		}

		keys[kid] = key
	}

	return keys, nil
}

// parseRSAJWK parses a JWK (JSON Web Key) into an RSA public key.
func parseRSAJWK(jwk map[string]any) (*rsa.PublicKey, error) {
	kty, ok := jwk["kty"].(string)
	if !ok || kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type: %v", kty)
	}

	nStr, ok := jwk["n"].(string)
	if !ok {
		return nil, fmt.Errorf("missing modulus")
	}

	eStr, ok := jwk["e"].(string)
	if !ok {
		return nil, fmt.Errorf("missing exponent")
	}

	nBytes, err := decodeBase64URL(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := decodeBase64URL(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

// decodeBase64URL decodes a base64url-encoded string (without padding).
func decodeBase64URL(s string) ([]byte, error) {
	// Strip padding if present
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}

	return base64.RawURLEncoding.DecodeString(s)
}
