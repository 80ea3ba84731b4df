package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/emitrack/emitrack/internal/models"
	"github.com/emitrack/emitrack/internal/store"
)

// CompanyStore implements store.CompanyStore using PostgreSQL.
//
// Create, GetBySlug, and List run on the platform path (they are only
// reachable behind the superadmin gate or the bootstrap command). Get is
// scoped to the company being fetched, so principal resolution can load a
// tenant user's own company without crossing any other tenant's rows.
type CompanyStore struct {
	runner *TxRunner
}

// NewCompanyStore creates a new PostgreSQL-backed company store.
func NewCompanyStore(runner *TxRunner) *CompanyStore {
	return &CompanyStore{runner: runner}
}

// Create creates a new company.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	now := time.Now()
	company.CreatedAt = now
	company.UpdatedAt = now

	err := s.runner.Unscoped(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO companies (company_id, name, slug, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			company.CompanyID,
			company.Name,
			company.Slug,
			company.CreatedAt,
			company.UpdatedAt,
		)
		return err
	})

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrCompanyAlreadyExists
		}
		return fmt.Errorf("failed to create company: %w", err)
	}

	log.Debug().
		Str("company_id", company.CompanyID.String()).
		Str("slug", company.Slug).
		Msg("created company")

	return nil
}

// Get retrieves a company by ID within a transaction scoped to that company.
func (s *CompanyStore) Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	var company models.Company
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		return scanCompany(tx.QueryRow(ctx, `
			SELECT company_id, name, slug, created_at, updated_at
			FROM companies
			WHERE company_id = $1
		`, companyID), &company)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &company, nil
}

// GetBySlug retrieves a company by its unique slug.
func (s *CompanyStore) GetBySlug(ctx context.Context, slug string) (*models.Company, error) {
	var company models.Company
	err := s.runner.Unscoped(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return scanCompany(tx.QueryRow(ctx, `
			SELECT company_id, name, slug, created_at, updated_at
			FROM companies
			WHERE slug = $1
		`, slug), &company)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company by slug: %w", err)
	}

	return &company, nil
}

// List returns all companies ordered by name.
func (s *CompanyStore) List(ctx context.Context) ([]*models.Company, error) {
	var companies []*models.Company
	err := s.runner.Unscoped(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT company_id, name, slug, created_at, updated_at
			FROM companies
			ORDER BY name
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var company models.Company
			if err := scanCompany(rows, &company); err != nil {
				return err
			}
			companies = append(companies, &company)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	return companies, nil
}

func scanCompany(row pgx.Row, c *models.Company) error {
	return row.Scan(&c.CompanyID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
}
