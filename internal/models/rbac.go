package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission is a global catalogue entry, not scoped to a company.
// Names follow the "<resource>:<action>" convention, e.g. "settings:read".
type Permission struct {
	PermissionID uuid.UUID
	Name         string
	Description  string
}

// Role is a named permission bundle scoped to a company. Role names are unique
// within their company.
type Role struct {
	RoleID    uuid.UUID // UUIDv7
	CompanyID uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RolePermission joins roles to the permissions they grant.
type RolePermission struct {
	RoleID       uuid.UUID
	PermissionID uuid.UUID
}

// UserRole assigns a role to a user. Both sides must belong to the same
// company; the role of one tenant is never assigned to the user of another.
type UserRole struct {
	UserID    uuid.UUID
	RoleID    uuid.UUID
	CompanyID uuid.UUID
}
