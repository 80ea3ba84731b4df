package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/emitrack/emitrack/internal/models"
)

// Access describes how a principal may touch data. It is a closed set:
// downstream code must type-switch on it, so the scoped variant is what you
// get unless the platform path was chosen deliberately.
type Access interface {
	isAccess()
}

// TenantAccess confines every data operation to one company's rows for the
// duration of a request.
type TenantAccess struct {
	CompanyID uuid.UUID
}

// PlatformAccess runs without tenant scoping. It is only ever produced for
// users whose superadmin flag is set.
type PlatformAccess struct{}

func (TenantAccess) isAccess()   {}
func (PlatformAccess) isAccess() {}

// Principal is the resolved identity behind an authenticated request.
type Principal struct {
	User    models.User
	Company models.Company
	Access  Access
}

type contextKey int

const principalContextKey contextKey = iota

// WithPrincipal returns a context carrying the resolved principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the request
// context. Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}
