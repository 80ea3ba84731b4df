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

// RBACStore implements store.RBACStore using PostgreSQL.
//
// Every company-parameterised operation runs inside a transaction scoped to
// that company, so the join across user_roles, role_permissions, and
// permissions can only ever traverse the tenant's own rows. Results are
// computed fresh on every call; there is no cache to go stale after a grant
// or revocation.
type RBACStore struct {
	pool   *pgxpool.Pool
	runner *TxRunner
}

// NewRBACStore creates a new PostgreSQL-backed RBAC store.
func NewRBACStore(pool *pgxpool.Pool, runner *TxRunner) *RBACStore {
	return &RBACStore{pool: pool, runner: runner}
}

// HasPermission reports whether the user holds the named permission within
// the company.
func (s *RBACStore) HasPermission(ctx context.Context, userID, companyID uuid.UUID, permission string) (bool, error) {
	var held bool
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1
				FROM user_roles ur
				JOIN role_permissions rp ON rp.role_id = ur.role_id
				JOIN permissions p ON p.permission_id = rp.permission_id
				WHERE ur.user_id = $1
				  AND ur.company_id = $2
				  AND p.name = $3
			)
		`, userID, companyID, permission).Scan(&held)
	})
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}

	return held, nil
}

// GetAccessProfile returns the user's roles and granted permission names in a
// single tenant-scoped transaction.
func (s *RBACStore) GetAccessProfile(ctx context.Context, userID, companyID uuid.UUID) (*store.AccessProfile, error) {
	profile := &store.AccessProfile{}
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT r.role_id, r.company_id, r.name, r.created_at, r.updated_at
			FROM roles r
			JOIN user_roles ur ON ur.role_id = r.role_id
			WHERE ur.user_id = $1
			ORDER BY r.name
		`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var role models.Role
			if err := scanRole(rows, &role); err != nil {
				return err
			}
			profile.Roles = append(profile.Roles, &role)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		rows, err = tx.Query(ctx, `
			SELECT DISTINCT p.name
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.permission_id = rp.permission_id
			WHERE ur.user_id = $1
			ORDER BY p.name
		`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			profile.Permissions = append(profile.Permissions, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get access profile: %w", err)
	}

	return profile, nil
}

// ListRoles returns all roles defined by the company.
func (s *RBACStore) ListRoles(ctx context.Context, companyID uuid.UUID) ([]*models.Role, error) {
	var roles []*models.Role
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT role_id, company_id, name, created_at, updated_at
			FROM roles
			WHERE company_id = $1
			ORDER BY name
		`, companyID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var role models.Role
			if err := scanRole(rows, &role); err != nil {
				return err
			}
			roles = append(roles, &role)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	return roles, nil
}

// CreateRole creates a new role within the company.
func (s *RBACStore) CreateRole(ctx context.Context, companyID uuid.UUID, name string) (*models.Role, error) {
	now := time.Now()
	role := &models.Role{
		RoleID:    uuid.Must(uuid.NewV7()),
		CompanyID: companyID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO roles (role_id, company_id, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, role.RoleID, role.CompanyID, role.Name, role.CreatedAt, role.UpdatedAt)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, "uq_roles_company_name") {
			return nil, store.ErrRoleAlreadyExists
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	log.Debug().
		Str("role_id", role.RoleID.String()).
		Str("company_id", companyID.String()).
		Str("name", name).
		Msg("created role")

	return role, nil
}

// GrantPermission adds a permission (by name) to a role.
func (s *RBACStore) GrantPermission(ctx context.Context, companyID, roleID uuid.UUID, permission string) error {
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		if err := requireRole(ctx, tx, roleID); err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, p.permission_id FROM permissions p WHERE p.name = $2
			ON CONFLICT DO NOTHING
		`, roleID, permission)
		if err != nil {
			return err
		}

		// Zero rows with the role present means either an unknown permission
		// name or an idempotent re-grant; distinguish the two.
		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM permissions WHERE name = $1)`, permission).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return store.ErrPermissionNotFound
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrRoleNotFound) || errors.Is(err, store.ErrPermissionNotFound) {
			return err
		}
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	return nil
}

// RevokePermission removes a permission (by name) from a role. Revoking a
// permission that was never granted is a no-op.
func (s *RBACStore) RevokePermission(ctx context.Context, companyID, roleID uuid.UUID, permission string) error {
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		if err := requireRole(ctx, tx, roleID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			DELETE FROM role_permissions rp
			USING permissions p
			WHERE rp.role_id = $1
			  AND p.permission_id = rp.permission_id
			  AND p.name = $2
		`, roleID, permission)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrRoleNotFound) {
			return err
		}
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	return nil
}

// AssignRole assigns a role of the company to a user of the same company.
// The composite foreign keys reject any user/role pair that does not share
// the company.
func (s *RBACStore) AssignRole(ctx context.Context, companyID, userID, roleID uuid.UUID) error {
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id, company_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, userID, roleID, companyID)
		return err
	})
	if err != nil {
		if isForeignKeyViolation(err, "user_roles_role_id_company_id_fkey") {
			return store.ErrRoleNotFound
		}
		if isForeignKeyViolation(err) {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}

	return nil
}

// RevokeRole removes a role assignment from a user. Revoking an assignment
// that does not exist is a no-op.
func (s *RBACStore) RevokeRole(ctx context.Context, companyID, userID, roleID uuid.UUID) error {
	err := s.runner.Scoped(ctx, companyID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM user_roles
			WHERE user_id = $1 AND role_id = $2
		`, userID, roleID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	return nil
}

// ListPermissions returns the global permission catalogue. The catalogue is
// not tenant data, so this reads outside any tenant transaction.
func (s *RBACStore) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT permission_id, name, COALESCE(description, '')
		FROM permissions
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []*models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.PermissionID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}

	return permissions, nil
}

func requireRole(ctx context.Context, tx pgx.Tx, roleID uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE role_id = $1)`, roleID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrRoleNotFound
	}
	return nil
}

func scanRole(row pgx.Row, r *models.Role) error {
	return row.Scan(&r.RoleID, &r.CompanyID, &r.Name, &r.CreatedAt, &r.UpdatedAt)
}
