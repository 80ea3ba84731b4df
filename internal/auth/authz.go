package auth

import (
	"context"
	"fmt"

	"github.com/emitrack/emitrack/internal/store"
)

// Permission represents an authorized action, named "<resource>:<action>".
type Permission string

const (
	PermSettingsRead   Permission = "settings:read"
	PermSettingsWrite  Permission = "settings:write"
	PermEmissionsRead  Permission = "emissions:read"
	PermEmissionsWrite Permission = "emissions:write"
	PermUsersManage    Permission = "users:manage"
	PermRolesRead      Permission = "roles:read"
	PermRolesManage    Permission = "roles:manage"
)

// Authorizer answers whether a principal holds a named permission within
// their company.
type Authorizer struct {
	rbac store.RBACStore
}

// NewAuthorizer creates an authorizer backed by the RBAC store.
func NewAuthorizer(rbac store.RBACStore) *Authorizer {
	return &Authorizer{rbac: rbac}
}

// Require returns nil if the principal holds the permission, ErrPermissionDenied
// otherwise. Platform principals bypass the permission model entirely.
func (a *Authorizer) Require(ctx context.Context, principal *Principal, perm Permission) error {
	switch access := principal.Access.(type) {
	case PlatformAccess:
		return nil
	case TenantAccess:
		ok, err := a.rbac.HasPermission(ctx, principal.User.UserID, access.CompanyID, string(perm))
		if err != nil {
			return fmt.Errorf("permission check failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, principal.User.UserID, perm)
		}
		return nil
	default:
		return ErrPermissionDenied
	}
}
