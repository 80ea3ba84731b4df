package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformCompanySlug identifies the internal company that anchors superadmin
// accounts. Superadmins operate across all tenants, but the users table requires
// a company reference, so they are parked under this sentinel tenant.
const (
	PlatformCompanySlug = "__platform__"
	PlatformCompanyName = "Platform (internal)"
)

// Company represents a tenant in the system. Every tenant-scoped row belongs,
// directly or transitively, to exactly one company.
type Company struct {
	CompanyID uuid.UUID // UUIDv7
	Name      string
	Slug      string // URL-safe identifier, e.g. "acme-corp", unique across all tenants
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPlatform returns true for the internal company that owns superadmin accounts.
func (c *Company) IsPlatform() bool {
	return c.Slug == PlatformCompanySlug
}
