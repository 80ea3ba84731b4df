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

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	mu sync.RWMutex

	users     map[uuid.UUID]*models.User
	bySubject map[string]*models.User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:     make(map[uuid.UUID]*models.User),
		bySubject: make(map[string]*models.User),
	}
}

// GetBySubject retrieves a user by identity-provider subject.
func (s *UserStore) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.bySubject[subject]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// Create provisions a new user.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.UserID]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := s.bySubject[user.Subject]; exists {
		return store.ErrUserAlreadyExists
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	// Clone to avoid external modifications
	clone := *user
	s.users[user.UserID] = &clone
	s.bySubject[user.Subject] = &clone

	return nil
}

// Promote sets the superadmin flag on an existing user.
func (s *UserStore) Promote(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}

	user.Superadmin = true
	user.UpdatedAt = time.Now()
	return nil
}

// ListByCompany returns all users belonging to a company.
func (s *UserStore) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []*models.User
	for _, user := range s.users {
		if user.CompanyID != companyID {
			continue
		}
		clone := *user
		users = append(users, &clone)
	}

	slices.SortFunc(users, func(a, b *models.User) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}
