package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/emitrack/emitrack/internal/store"
)

// Resolver maps a verified claim set to an internal user and its company.
type Resolver struct {
	users     store.UserStore
	companies store.CompanyStore
}

// NewResolver creates a principal resolver backed by the given stores.
func NewResolver(users store.UserStore, companies store.CompanyStore) *Resolver {
	return &Resolver{users: users, companies: companies}
}

// Resolve looks up the user by exact match on the subject claim and returns
// the principal with its access variant. The identity provider has already
// authenticated the caller at this point; a missing or disabled user record
// still fails with ErrNotProvisioned so the request is rejected rather than an
// account being created implicitly.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*Principal, error) {
	user, err := r.users.GetBySubject(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: subject %q", ErrNotProvisioned, claims.Subject)
		}
		return nil, fmt.Errorf("failed to resolve subject: %w", err)
	}

	if !user.Active {
		return nil, fmt.Errorf("%w: user %s is disabled", ErrNotProvisioned, user.UserID)
	}

	company, err := r.companies.Get(ctx, user.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company %s: %w", user.CompanyID, err)
	}

	var access Access = TenantAccess{CompanyID: user.CompanyID}
	if user.Superadmin {
		access = PlatformAccess{}
	}

	return &Principal{
		User:    *user,
		Company: *company,
		Access:  access,
	}, nil
}
