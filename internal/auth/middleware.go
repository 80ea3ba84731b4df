package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Middleware runs the trust pipeline for inbound HTTP requests: token
// verification, then principal resolution. The stages always execute in that
// order; no handler sees a request before both have succeeded.
type Middleware struct {
	verifier *Verifier
	resolver *Resolver
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(verifier *Verifier, resolver *Resolver) *Middleware {
	return &Middleware{verifier: verifier, resolver: resolver}
}

// Authenticate verifies the bearer token, resolves the principal, and stores
// it in the request context. Every failure mode collapses into the same
// generic 401 body; the reason is logged, never returned, so callers cannot
// probe key state or provisioning state.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			log.Warn().Msg("missing bearer token")
			writeUnauthorized(w)
			return
		}

		ctx := r.Context()

		claims, err := m.verifier.Verify(ctx, tokenStr)
		if err != nil {
			log.Warn().Err(err).Msg("token verification failed")
			writeUnauthorized(w)
			return
		}

		principal, err := m.resolver.Resolve(ctx, claims)
		if err != nil {
			log.Warn().Err(err).Msg("principal resolution failed")
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// RequireSuperadmin gates platform routes to principals with platform access.
// It must be chained after Authenticate: an unauthenticated caller gets a 401
// before ever reaching this check.
func RequireSuperadmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			writeUnauthorized(w)
			return
		}

		if _, ok := principal.Access.(PlatformAccess); !ok {
			log.Warn().
				Str("user_id", principal.User.UserID.String()).
				Msg("superadmin required")
			writeForbidden(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireTenant gates tenant-scoped routes to principals with tenant access.
// Platform principals are rejected; cross-tenant administration goes through
// the /admin surface instead.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil {
			writeUnauthorized(w)
			return
		}

		if _, ok := principal.Access.(TenantAccess); !ok {
			log.Warn().
				Str("user_id", principal.User.UserID.String()).
				Msg("tenant route called without tenant access")
			writeForbidden(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeCategory(w, http.StatusUnauthorized, "unauthorized")
}

func writeForbidden(w http.ResponseWriter) {
	writeCategory(w, http.StatusForbidden, "forbidden")
}

func writeCategory(w http.ResponseWriter, status int, category string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", category)
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}
