package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emitrack/emitrack/internal/models"
	"github.com/emitrack/emitrack/internal/store"
)

// RBACStore implements store.RBACStore using in-memory storage. Scoping is
// enforced by filtering on company, mirroring the row-level isolation the
// PostgreSQL implementation gets from the database.
type RBACStore struct {
	mu sync.RWMutex

	permissions map[string]*models.Permission         // name -> permission
	roles       map[uuid.UUID]*models.Role            // role_id -> role
	rolePerms   map[uuid.UUID]map[uuid.UUID]bool      // role_id -> permission_id set
	userRoles   map[uuid.UUID]map[uuid.UUID]uuid.UUID // user_id -> role_id -> company_id
}

// NewRBACStore creates a new in-memory RBAC store.
func NewRBACStore() *RBACStore {
	return &RBACStore{
		permissions: make(map[string]*models.Permission),
		roles:       make(map[uuid.UUID]*models.Role),
		rolePerms:   make(map[uuid.UUID]map[uuid.UUID]bool),
		userRoles:   make(map[uuid.UUID]map[uuid.UUID]uuid.UUID),
	}
}

// SeedPermissions registers permission catalogue entries by name. The
// PostgreSQL implementation gets these from a migration.
func (s *RBACStore) SeedPermissions(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		if _, exists := s.permissions[name]; exists {
			continue
		}
		s.permissions[name] = &models.Permission{
			PermissionID: uuid.Must(uuid.NewV7()),
			Name:         name,
		}
	}
}

// HasPermission reports whether the user holds the named permission within
// the company.
func (s *RBACStore) HasPermission(ctx context.Context, userID, companyID uuid.UUID, permission string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perm, exists := s.permissions[permission]
	if !exists {
		return false, nil
	}

	for roleID, roleCompany := range s.userRoles[userID] {
		if roleCompany != companyID {
			continue
		}
		if s.rolePerms[roleID][perm.PermissionID] {
			return true, nil
		}
	}
	return false, nil
}

// GetAccessProfile returns the user's roles and granted permission names.
func (s *RBACStore) GetAccessProfile(ctx context.Context, userID, companyID uuid.UUID) (*store.AccessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile := &store.AccessProfile{}
	seen := make(map[string]bool)

	for roleID, roleCompany := range s.userRoles[userID] {
		if roleCompany != companyID {
			continue
		}

		role, exists := s.roles[roleID]
		if !exists {
			continue
		}
		clone := *role
		profile.Roles = append(profile.Roles, &clone)

		for permID := range s.rolePerms[roleID] {
			for name, perm := range s.permissions {
				if perm.PermissionID == permID && !seen[name] {
					seen[name] = true
					profile.Permissions = append(profile.Permissions, name)
				}
			}
		}
	}

	slices.SortFunc(profile.Roles, func(a, b *models.Role) int {
		return strings.Compare(a.Name, b.Name)
	})
	slices.Sort(profile.Permissions)
	return profile, nil
}

// ListRoles returns all roles defined by the company.
func (s *RBACStore) ListRoles(ctx context.Context, companyID uuid.UUID) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roles []*models.Role
	for _, role := range s.roles {
		if role.CompanyID != companyID {
			continue
		}
		clone := *role
		roles = append(roles, &clone)
	}

	slices.SortFunc(roles, func(a, b *models.Role) int {
		return strings.Compare(a.Name, b.Name)
	})
	return roles, nil
}

// CreateRole creates a new role within the company.
func (s *RBACStore) CreateRole(ctx context.Context, companyID uuid.UUID, name string) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, role := range s.roles {
		if role.CompanyID == companyID && role.Name == name {
			return nil, store.ErrRoleAlreadyExists
		}
	}

	now := time.Now()
	role := &models.Role{
		RoleID:    uuid.Must(uuid.NewV7()),
		CompanyID: companyID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.roles[role.RoleID] = role
	s.rolePerms[role.RoleID] = make(map[uuid.UUID]bool)

	clone := *role
	return &clone, nil
}

// GrantPermission adds a permission (by name) to a role.
func (s *RBACStore) GrantPermission(ctx context.Context, companyID, roleID uuid.UUID, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, exists := s.roles[roleID]
	if !exists || role.CompanyID != companyID {
		return store.ErrRoleNotFound
	}

	perm, exists := s.permissions[permission]
	if !exists {
		return store.ErrPermissionNotFound
	}

	s.rolePerms[roleID][perm.PermissionID] = true
	return nil
}

// RevokePermission removes a permission (by name) from a role.
func (s *RBACStore) RevokePermission(ctx context.Context, companyID, roleID uuid.UUID, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, exists := s.roles[roleID]
	if !exists || role.CompanyID != companyID {
		return store.ErrRoleNotFound
	}

	if perm, exists := s.permissions[permission]; exists {
		delete(s.rolePerms[roleID], perm.PermissionID)
	}
	return nil
}

// AssignRole assigns a role of the company to a user of the same company.
func (s *RBACStore) AssignRole(ctx context.Context, companyID, userID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, exists := s.roles[roleID]
	if !exists || role.CompanyID != companyID {
		return store.ErrRoleNotFound
	}

	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[uuid.UUID]uuid.UUID)
	}
	s.userRoles[userID][roleID] = companyID
	return nil
}

// RevokeRole removes a role assignment from a user.
func (s *RBACStore) RevokeRole(ctx context.Context, companyID, userID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.userRoles[userID], roleID)
	return nil
}

// ListPermissions returns the global permission catalogue.
func (s *RBACStore) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	permissions := make([]*models.Permission, 0, len(s.permissions))
	for _, perm := range s.permissions {
		clone := *perm
		permissions = append(permissions, &clone)
	}

	slices.SortFunc(permissions, func(a, b *models.Permission) int {
		return strings.Compare(a.Name, b.Name)
	})
	return permissions, nil
}
