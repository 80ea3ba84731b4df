package auth

import "errors"

// Sentinel errors for the authentication pipeline. Handlers collapse all of
// them into a generic 401 response; the distinctions exist for logs and tests.
var (
	// ErrMalformedToken means the bearer token is not a well-formed JWT or is
	// missing required structure (e.g. the kid header or sub claim).
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature means the token signature does not verify against
	// the resolved signing key.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired means the token's expiry claim is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers remaining claim validation failures (nbf, iat).
	ErrTokenInvalid = errors.New("token invalid")

	// ErrKeyNotFound means the token's key ID is absent from a freshly
	// fetched key set.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrKeySetUnavailable means the key set could not be fetched from the
	// identity provider. Verification fails rather than proceeding
	// unauthenticated; the caller may retry on its next request.
	ErrKeySetUnavailable = errors.New("key set unavailable")

	// ErrNotProvisioned means the token verified but no user record exists
	// for its subject. The request is rejected rather than auto-creating an
	// account, and the outward response is indistinguishable from a bad token.
	ErrNotProvisioned = errors.New("user not provisioned")

	// ErrPermissionDenied means the principal is authenticated and provisioned
	// but lacks the required permission.
	ErrPermissionDenied = errors.New("permission denied")
)
