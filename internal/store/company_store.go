package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/emitrack/emitrack/internal/models"
)

// Sentinel errors for company store operations
var (
	ErrCompanyNotFound      = errors.New("company not found")
	ErrCompanyAlreadyExists = errors.New("company already exists")
)

// CompanyStore defines the interface for tenant (company) storage operations.
// Create, GetBySlug, and List run on the platform path and are only reachable
// behind the superadmin gate or the bootstrap command. Get runs scoped to the
// requested company itself, so principal resolution never takes the platform
// path.
type CompanyStore interface {
	// Create creates a new company.
	// Returns ErrCompanyAlreadyExists if the slug is already taken.
	Create(ctx context.Context, company *models.Company) error

	// Get retrieves a company by ID.
	// Returns ErrCompanyNotFound if the company doesn't exist.
	Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error)

	// GetBySlug retrieves a company by its unique slug.
	// Returns ErrCompanyNotFound if the company doesn't exist.
	GetBySlug(ctx context.Context, slug string) (*models.Company, error)

	// List returns all companies ordered by name.
	List(ctx context.Context) ([]*models.Company, error)
}
