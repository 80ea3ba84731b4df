//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emitrack/emitrack/internal/models"
	"github.com/emitrack/emitrack/internal/store"
)

type testEnv struct {
	pool      *pgxpool.Pool
	runner    *TxRunner
	companies *CompanyStore
	users     *UserStore
	rbac      *RBACStore
}

// setupTestEnv starts a postgres container, runs migrations as the owning
// role, then reconnects as a plain application role. Row level security is
// not applied to superusers or table owners, so connecting as the migration
// user would silently test nothing.
func setupTestEnv(t *testing.T, ctx context.Context) *testEnv {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	adminConn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	adminPool, err := pgxpool.New(ctx, adminConn)
	require.NoError(t, err)
	t.Cleanup(adminPool.Close)

	require.NoError(t, RunMigrations(ctx, adminPool))

	// The application role: LOGIN only, no ownership, no BYPASSRLS.
	setup := []string{
		`CREATE ROLE emitrack_app LOGIN PASSWORD 'app'`,
		`GRANT USAGE ON SCHEMA public TO emitrack_app`,
		`GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO emitrack_app`,
		`GRANT EXECUTE ON FUNCTION auth_user_by_subject(TEXT) TO emitrack_app`,
	}
	for _, stmt := range setup {
		_, err = adminPool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	// MaxConns 1 so every query in these tests reuses the same connection;
	// a marker leaking past its transaction would be visible immediately.
	appConn := fmt.Sprintf("postgres://emitrack_app:app@%s:%s/testdb?sslmode=disable", host, port.Port())
	pool, err := NewPool(ctx, &PoolConfig{
		ConnString: appConn,
		MaxConns:   1,
		MinConns:   1,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runner := NewTxRunner(pool)
	return &testEnv{
		pool:      pool,
		runner:    runner,
		companies: NewCompanyStore(runner),
		users:     NewUserStore(pool, runner),
		rbac:      NewRBACStore(pool, runner),
	}
}

func createCompany(t *testing.T, env *testEnv, ctx context.Context, slug string) *models.Company {
	t.Helper()

	company := &models.Company{
		CompanyID: uuid.Must(uuid.NewV7()),
		Name:      slug,
		Slug:      slug,
	}
	require.NoError(t, env.companies.Create(ctx, company))
	return company
}

func createUser(t *testing.T, env *testEnv, ctx context.Context, companyID uuid.UUID, subject string) *models.User {
	t.Helper()

	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		CompanyID: companyID,
		Subject:   subject,
		Email:     subject + "@example.com",
		Active:    true,
	}
	require.NoError(t, env.users.Create(ctx, user))
	return user
}

func TestIntegration_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, ctx)

	companyA := createCompany(t, env, ctx, "acme")
	companyB := createCompany(t, env, ctx, "globex")
	userA := createUser(t, env, ctx, companyA.CompanyID, "sub-a")
	createUser(t, env, ctx, companyB.CompanyID, "sub-b")

	t.Run("unscoped connection sees nothing", func(t *testing.T) {
		var count int
		err := env.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count)
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("scoped transaction sees only its company", func(t *testing.T) {
		var subjects []string
		err := env.runner.Scoped(ctx, companyA.CompanyID, func(ctx context.Context, tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `SELECT subject FROM users`)
			if err != nil {
				return err
			}
			subjects, err = pgx.CollectRows(rows, pgx.RowTo[string])
			return err
		})
		require.NoError(t, err)
		require.Equal(t, []string{"sub-a"}, subjects)
	})

	t.Run("list users is company scoped", func(t *testing.T) {
		users, err := env.users.ListByCompany(ctx, companyA.CompanyID)
		require.NoError(t, err)
		require.Len(t, users, 1)
		require.Equal(t, userA.UserID, users[0].UserID)
	})

	t.Run("tenant marker does not outlive the transaction", func(t *testing.T) {
		err := env.runner.Scoped(ctx, companyA.CompanyID, func(ctx context.Context, tx pgx.Tx) error {
			return nil
		})
		require.NoError(t, err)

		var marker string
		err = env.pool.QueryRow(ctx,
			`SELECT COALESCE(current_setting('app.current_company_id', true), '')`).Scan(&marker)
		require.NoError(t, err)
		require.Empty(t, marker)
	})

	t.Run("marker is cleared on rollback too", func(t *testing.T) {
		boom := fmt.Errorf("boom")
		err := env.runner.Scoped(ctx, companyA.CompanyID, func(ctx context.Context, tx pgx.Tx) error {
			return boom
		})
		require.ErrorIs(t, err, boom)

		var marker string
		err = env.pool.QueryRow(ctx,
			`SELECT COALESCE(current_setting('app.current_company_id', true), '')`).Scan(&marker)
		require.NoError(t, err)
		require.Empty(t, marker)
	})

	t.Run("subject lookup works without a tenant scope", func(t *testing.T) {
		got, err := env.users.GetBySubject(ctx, "sub-a")
		require.NoError(t, err)
		require.Equal(t, userA.UserID, got.UserID)

		_, err = env.users.GetBySubject(ctx, "sub-unknown")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("duplicate subject is rejected", func(t *testing.T) {
		dup := &models.User{
			UserID:    uuid.Must(uuid.NewV7()),
			CompanyID: companyB.CompanyID,
			Subject:   "sub-a",
			Email:     "dup@example.com",
			Active:    true,
		}
		require.ErrorIs(t, env.users.Create(ctx, dup), store.ErrUserAlreadyExists)
	})

	t.Run("duplicate slug is rejected", func(t *testing.T) {
		dup := &models.Company{
			CompanyID: uuid.Must(uuid.NewV7()),
			Name:      "Acme Again",
			Slug:      "acme",
		}
		require.ErrorIs(t, env.companies.Create(ctx, dup), store.ErrCompanyAlreadyExists)
	})
}

func TestIntegration_RBAC(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, ctx)

	companyA := createCompany(t, env, ctx, "acme")
	companyB := createCompany(t, env, ctx, "globex")
	userA := createUser(t, env, ctx, companyA.CompanyID, "sub-a")
	userB := createUser(t, env, ctx, companyB.CompanyID, "sub-b")

	role, err := env.rbac.CreateRole(ctx, companyA.CompanyID, "reporter")
	require.NoError(t, err)

	t.Run("permission check is monotonic in grants", func(t *testing.T) {
		require.NoError(t, env.rbac.AssignRole(ctx, companyA.CompanyID, userA.UserID, role.RoleID))

		ok, err := env.rbac.HasPermission(ctx, userA.UserID, companyA.CompanyID, "emissions:read")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, env.rbac.GrantPermission(ctx, companyA.CompanyID, role.RoleID, "emissions:read"))

		ok, err = env.rbac.HasPermission(ctx, userA.UserID, companyA.CompanyID, "emissions:read")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, env.rbac.RevokePermission(ctx, companyA.CompanyID, role.RoleID, "emissions:read"))

		ok, err = env.rbac.HasPermission(ctx, userA.UserID, companyA.CompanyID, "emissions:read")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unknown permission name", func(t *testing.T) {
		err := env.rbac.GrantPermission(ctx, companyA.CompanyID, role.RoleID, "no:such")
		require.ErrorIs(t, err, store.ErrPermissionNotFound)
	})

	t.Run("cross company role assignment is rejected", func(t *testing.T) {
		err := env.rbac.AssignRole(ctx, companyB.CompanyID, userB.UserID, role.RoleID)
		require.ErrorIs(t, err, store.ErrRoleNotFound)
	})

	t.Run("roles are invisible to other companies", func(t *testing.T) {
		roles, err := env.rbac.ListRoles(ctx, companyB.CompanyID)
		require.NoError(t, err)
		require.Empty(t, roles)
	})

	t.Run("duplicate role name within company", func(t *testing.T) {
		_, err := env.rbac.CreateRole(ctx, companyA.CompanyID, "reporter")
		require.ErrorIs(t, err, store.ErrRoleAlreadyExists)

		// Same name in another company is allowed.
		_, err = env.rbac.CreateRole(ctx, companyB.CompanyID, "reporter")
		require.NoError(t, err)
	})

	t.Run("permission catalogue is seeded", func(t *testing.T) {
		perms, err := env.rbac.ListPermissions(ctx)
		require.NoError(t, err)
		require.Len(t, perms, 7)
	})

	t.Run("access profile unions role grants", func(t *testing.T) {
		second, err := env.rbac.CreateRole(ctx, companyA.CompanyID, "auditor")
		require.NoError(t, err)
		require.NoError(t, env.rbac.GrantPermission(ctx, companyA.CompanyID, role.RoleID, "emissions:read"))
		require.NoError(t, env.rbac.GrantPermission(ctx, companyA.CompanyID, second.RoleID, "emissions:read"))
		require.NoError(t, env.rbac.GrantPermission(ctx, companyA.CompanyID, second.RoleID, "roles:read"))
		require.NoError(t, env.rbac.AssignRole(ctx, companyA.CompanyID, userA.UserID, second.RoleID))

		profile, err := env.rbac.GetAccessProfile(ctx, userA.UserID, companyA.CompanyID)
		require.NoError(t, err)
		require.Len(t, profile.Roles, 2)
		require.Equal(t, []string{"emissions:read", "roles:read"}, profile.Permissions)
	})
}

func TestIntegration_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, ctx)

	company := createCompany(t, env, ctx, "acme")

	_, err := env.users.GetBySubject(ctx, "sub-123")
	require.ErrorIs(t, err, store.ErrUserNotFound)

	user := createUser(t, env, ctx, company.CompanyID, "sub-123")

	got, err := env.users.GetBySubject(ctx, "sub-123")
	require.NoError(t, err)
	require.Equal(t, user.UserID, got.UserID)
	require.False(t, got.Superadmin)

	require.NoError(t, env.users.Promote(ctx, user.UserID))

	got, err = env.users.GetBySubject(ctx, "sub-123")
	require.NoError(t, err)
	require.True(t, got.Superadmin)

	require.ErrorIs(t, env.users.Promote(ctx, uuid.Must(uuid.NewV7())), store.ErrUserNotFound)

	// Creating a user under a company that does not exist trips the FK.
	orphan := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		CompanyID: uuid.Must(uuid.NewV7()),
		Subject:   "orphan-sub",
		Email:     "orphan@example.com",
		Active:    true,
	}
	require.ErrorIs(t, env.users.Create(ctx, orphan), store.ErrCompanyNotFound)
}
