package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/emitrack/emitrack/internal/models"
)

// Sentinel errors for user store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserStore defines the interface for user storage operations.
type UserStore interface {
	// GetBySubject retrieves a user by the identity-provider subject claim.
	// This is the request-time resolution lookup and runs before any tenant
	// scope is activated.
	// Returns ErrUserNotFound if no user has been provisioned for the subject.
	GetBySubject(ctx context.Context, subject string) (*models.User, error)

	// Get retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// Create provisions a new user into a company.
	// Returns ErrUserAlreadyExists if the subject is already provisioned.
	Create(ctx context.Context, user *models.User) error

	// Promote sets the superadmin flag on an existing user.
	// Returns ErrUserNotFound if the user doesn't exist.
	Promote(ctx context.Context, userID uuid.UUID) error

	// ListByCompany returns all users belonging to a company.
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.User, error)
}
