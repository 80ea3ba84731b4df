package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/emitrack/emitrack/internal/models"
	"github.com/emitrack/emitrack/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool   *pgxpool.Pool
	runner *TxRunner
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool, runner *TxRunner) *UserStore {
	return &UserStore{pool: pool, runner: runner}
}

// GetBySubject retrieves a user by identity-provider subject. This lookup
// happens before any tenant scope exists, so it goes through the
// auth_user_by_subject SECURITY DEFINER function rather than the RLS-guarded
// table directly.
func (s *UserStore) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	var u models.User
	err := scanUser(s.pool.QueryRow(ctx, `
		SELECT user_id, company_id, subject, email, active, superadmin, created_at, updated_at
		FROM auth_user_by_subject($1)
	`, subject), &u)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by subject: %w", err)
	}

	return &u, nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.runner.Unscoped(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return scanUser(tx.QueryRow(ctx, `
			SELECT user_id, company_id, subject, email, active, superadmin, created_at, updated_at
			FROM users
			WHERE user_id = $1
		`, userID), &u)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}

// Create provisions a new user into a company.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := s.runner.Unscoped(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (user_id, company_id, subject, email, active, superadmin, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			user.UserID,
			user.CompanyID,
			user.Subject,
			user.Email,
			user.Active,
			user.Superadmin,
			user.CreatedAt,
			user.UpdatedAt,
		)
		return err
	})

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrCompanyNotFound
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("company_id", user.CompanyID.String()).
		Msg("provisioned user")

	return nil
}

// Promote sets the superadmin flag on an existing user.
func (s *UserStore) Promote(ctx context.Context, userID uuid.UUID) error {
	err := s.runner.Unscoped(ctx, func(ctx context.Context, tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE users
			SET superadmin = TRUE, updated_at = now()
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return store.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to promote user: %w", err)
	}

	log.Info().Str("user_id", userID.String()).Msg("promoted user to superadmin")
	return nil
}

// ListByCompany returns all users belonging to a company, within a
// transaction scoped to that company.
func (s *UserStore) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.User, error) {
	var users []*models.User
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT user_id, company_id, subject, email, active, superadmin, created_at, updated_at
			FROM users
			WHERE company_id = $1
			ORDER BY email
		`, companyID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u models.User
			if err := scanUser(rows, &u); err != nil {
				return err
			}
			users = append(users, &u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

func scanUser(row pgx.Row, u *models.User) error {
	return row.Scan(&u.UserID, &u.CompanyID, &u.Subject, &u.Email, &u.Active, &u.Superadmin, &u.CreatedAt, &u.UpdatedAt)
}
