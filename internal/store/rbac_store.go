package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/emitrack/emitrack/internal/models"
)

// Sentinel errors for RBAC store operations
var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleAlreadyExists  = errors.New("role already exists")
	ErrPermissionNotFound = errors.New("permission not found")
)

// AccessProfile describes what a user can do within their company: the roles
// assigned to them and the union of permission names those roles grant.
type AccessProfile struct {
	Roles       []*models.Role
	Permissions []string
}

// RBACStore defines the interface for role and permission storage operations.
//
// Every method that takes a companyID executes inside a transaction scoped to
// that company, so reads only observe the tenant's own rows. The permission
// catalogue itself is global reference data.
type RBACStore interface {
	// HasPermission reports whether the user holds the named permission within
	// the company, via some role assigned to them.
	HasPermission(ctx context.Context, userID, companyID uuid.UUID, permission string) (bool, error)

	// GetAccessProfile returns the user's roles and granted permission names
	// in a single tenant-scoped transaction.
	GetAccessProfile(ctx context.Context, userID, companyID uuid.UUID) (*AccessProfile, error)

	// ListRoles returns all roles defined by the company.
	ListRoles(ctx context.Context, companyID uuid.UUID) ([]*models.Role, error)

	// CreateRole creates a new role within the company.
	// Returns ErrRoleAlreadyExists if the name is taken within the company.
	CreateRole(ctx context.Context, companyID uuid.UUID, name string) (*models.Role, error)

	// GrantPermission adds a permission (by name) to a role.
	// Returns ErrRoleNotFound or ErrPermissionNotFound.
	GrantPermission(ctx context.Context, companyID, roleID uuid.UUID, permission string) error

	// RevokePermission removes a permission (by name) from a role.
	RevokePermission(ctx context.Context, companyID, roleID uuid.UUID, permission string) error

	// AssignRole assigns a role of the company to a user of the same company.
	// Returns ErrRoleNotFound if the role doesn't exist within the company.
	AssignRole(ctx context.Context, companyID, userID, roleID uuid.UUID) error

	// RevokeRole removes a role assignment from a user.
	RevokeRole(ctx context.Context, companyID, userID, roleID uuid.UUID) error

	// ListPermissions returns the global permission catalogue.
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
}
