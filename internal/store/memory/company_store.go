// Package memory provides in-memory store implementations. They are used by
// unit tests and the development mode of the server; data is lost on restart.
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

// CompanyStore implements store.CompanyStore using in-memory storage.
type CompanyStore struct {
	mu sync.RWMutex

	companies map[uuid.UUID]*models.Company
	bySlug    map[string]*models.Company
}

// NewCompanyStore creates a new in-memory company store.
func NewCompanyStore() *CompanyStore {
	return &CompanyStore{
		companies: make(map[uuid.UUID]*models.Company),
		bySlug:    make(map[string]*models.Company),
	}
}

// Create creates a new company in memory.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[company.CompanyID]; exists {
		return store.ErrCompanyAlreadyExists
	}
	if _, exists := s.bySlug[company.Slug]; exists {
		return store.ErrCompanyAlreadyExists
	}

	now := time.Now()
	company.CreatedAt = now
	company.UpdatedAt = now

	// Clone to avoid external modifications
	clone := *company
	s.companies[company.CompanyID] = &clone
	s.bySlug[company.Slug] = &clone

	return nil
}

// Get retrieves a company by ID.
func (s *CompanyStore) Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.companies[companyID]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}

	clone := *company
	return &clone, nil
}

// GetBySlug retrieves a company by its unique slug.
func (s *CompanyStore) GetBySlug(ctx context.Context, slug string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.bySlug[slug]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}

	clone := *company
	return &clone, nil
}

// List returns all companies ordered by name.
func (s *CompanyStore) List(ctx context.Context) ([]*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	companies := make([]*models.Company, 0, len(s.companies))
	for _, company := range s.companies {
		clone := *company
		companies = append(companies, &clone)
	}

	slices.SortFunc(companies, func(a, b *models.Company) int {
		return strings.Compare(a.Name, b.Name)
	})
	return companies, nil
}
