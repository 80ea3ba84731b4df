package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a provisioned account linked to an identity-provider subject.
// Users belong to exactly one company; the company reference never changes after
// provisioning.
type User struct {
	UserID    uuid.UUID // UUIDv7
	CompanyID uuid.UUID // FK to companies

	// Subject is the 'sub' claim from the identity token. Globally unique and
	// immutable; this is the only claim trusted for identity resolution.
	Subject string

	Email      string
	Active     bool
	Superadmin bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
