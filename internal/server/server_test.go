package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/emitrack/emitrack/internal/auth"
	"github.com/emitrack/emitrack/internal/idp"
	"github.com/emitrack/emitrack/internal/models"
	memorystore "github.com/emitrack/emitrack/internal/store/memory"
)

const testKid = "test-key"

// env wires a full stack: JWKS endpoint, trust pipeline, memory stores, and
// the HTTP routes. Requests go through the real middleware chain.
type env struct {
	key       *rsa.PrivateKey
	handler   http.Handler
	companies *memorystore.CompanyStore
	users     *memorystore.UserStore
	rbac      *memorystore.RBACStore
	subjects  *idp.Static

	platform *models.Company
}

func newEnv(t *testing.T) *env {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks, _ := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKid,
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	t.Cleanup(srv.Close)

	companies := memorystore.NewCompanyStore()
	users := memorystore.NewUserStore()
	rbac := memorystore.NewRBACStore()
	rbac.SeedPermissions(
		string(auth.PermSettingsRead), string(auth.PermEmissionsRead),
		string(auth.PermRolesRead), string(auth.PermRolesManage),
	)
	subjects := &idp.Static{}

	verifier := auth.NewVerifier(auth.NewKeySetCache(srv.URL, srv.Client()))
	resolver := auth.NewResolver(users, companies)
	mw := auth.NewMiddleware(verifier, resolver)

	e := &env{
		key:       key,
		companies: companies,
		users:     users,
		rbac:      rbac,
		subjects:  subjects,
	}

	e.platform = &models.Company{
		CompanyID: uuid.Must(uuid.NewV7()),
		Name:      models.PlatformCompanyName,
		Slug:      models.PlatformCompanySlug,
	}
	require.NoError(t, companies.Create(t.Context(), e.platform))

	s := New(companies, users, rbac, auth.NewAuthorizer(rbac), subjects)
	e.handler = s.Routes(zerolog.Nop(), mw)

	return e
}

func (e *env) token(t *testing.T, subject string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token.Header["kid"] = testKid

	signed, err := token.SignedString(e.key)
	require.NoError(t, err)
	return signed
}

// seedSuperadmin provisions a platform user and returns a token for it.
func (e *env) seedSuperadmin(t *testing.T) string {
	t.Helper()

	admin := &models.User{
		UserID:     uuid.Must(uuid.NewV7()),
		CompanyID:  e.platform.CompanyID,
		Subject:    "admin-sub",
		Email:      "admin@example.com",
		Active:     true,
		Superadmin: true,
	}
	require.NoError(t, e.users.Create(t.Context(), admin))
	return e.token(t, "admin-sub")
}

// seedTenant provisions a company and an active user in it, returning the
// company and a token for the user.
func (e *env) seedTenant(t *testing.T, slug, subject string) (*models.Company, *models.User, string) {
	t.Helper()

	company := &models.Company{
		CompanyID: uuid.Must(uuid.NewV7()),
		Name:      slug,
		Slug:      slug,
	}
	require.NoError(t, e.companies.Create(t.Context(), company))

	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		CompanyID: company.CompanyID,
		Subject:   subject,
		Email:     subject + "@example.com",
		Active:    true,
	}
	require.NoError(t, e.users.Create(t.Context(), user))

	return company, user, e.token(t, subject)
}

func (e *env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireSuperadmin(t *testing.T) {
	e := newEnv(t)
	adminToken := e.seedSuperadmin(t)
	_, _, tenantToken := e.seedTenant(t, "acme", "tenant-sub")

	// No token at all.
	rec := e.do(t, http.MethodGet, "/admin/companies", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Tenant users cannot reach the admin surface.
	rec = e.do(t, http.MethodGet, "/admin/companies", tenantToken, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/admin/companies", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCompany(t *testing.T) {
	e := newEnv(t)
	adminToken := e.seedSuperadmin(t)

	rec := e.do(t, http.MethodPost, "/admin/companies", adminToken,
		`{"name": "Acme Corp", "slug": "acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created companyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "acme", created.Slug)
	require.NotEmpty(t, created.CompanyID)

	// Slug is unique.
	rec = e.do(t, http.MethodPost, "/admin/companies", adminToken,
		`{"name": "Acme Again", "slug": "acme"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	// The platform slug is reserved.
	rec = e.do(t, http.MethodPost, "/admin/companies", adminToken,
		`{"name": "Sneaky", "slug": "__platform__"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/admin/companies", adminToken, `{"name": ""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProvisionUser(t *testing.T) {
	e := newEnv(t)
	adminToken := e.seedSuperadmin(t)
	company, _, _ := e.seedTenant(t, "acme", "existing-sub")

	e.subjects.Subjects = []string{"sub-123", "existing-sub"}

	rec := e.do(t, http.MethodPost, "/admin/companies/"+company.CompanyID.String()+"/users",
		adminToken, `{"subject": "sub-123", "email": "new@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "sub-123", created.Subject)
	require.True(t, created.Active)

	// A subject can only be provisioned once.
	rec = e.do(t, http.MethodPost, "/admin/companies/"+company.CompanyID.String()+"/users",
		adminToken, `{"subject": "existing-sub", "email": "dup@example.com"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Subjects unknown to the identity provider are refused.
	rec = e.do(t, http.MethodPost, "/admin/companies/"+company.CompanyID.String()+"/users",
		adminToken, `{"subject": "ghost-sub", "email": "ghost@example.com"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown company.
	rec = e.do(t, http.MethodPost, "/admin/companies/"+uuid.Must(uuid.NewV7()).String()+"/users",
		adminToken, `{"subject": "sub-123", "email": "new@example.com"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/admin/companies/not-a-uuid/users",
		adminToken, `{"subject": "sub-123", "email": "new@example.com"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	company, user, token := e.seedTenant(t, "acme", "sub-123")

	role, err := e.rbac.CreateRole(t.Context(), company.CompanyID, "viewer")
	require.NoError(t, err)
	require.NoError(t, e.rbac.GrantPermission(t.Context(), company.CompanyID, role.RoleID, string(auth.PermEmissionsRead)))
	require.NoError(t, e.rbac.AssignRole(t.Context(), company.CompanyID, user.UserID, role.RoleID))

	rec := e.do(t, http.MethodGet, "/v1/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, user.UserID.String(), me.UserID)
	require.Equal(t, "acme", me.CompanySlug)
	require.Len(t, me.Roles, 1)
	require.Equal(t, []string{string(auth.PermEmissionsRead)}, me.Permissions)
}

func TestListRolesRequiresPermission(t *testing.T) {
	e := newEnv(t)
	company, user, token := e.seedTenant(t, "acme", "sub-123")

	rec := e.do(t, http.MethodGet, "/v1/roles", token, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	role, err := e.rbac.CreateRole(t.Context(), company.CompanyID, "auditor")
	require.NoError(t, err)
	require.NoError(t, e.rbac.GrantPermission(t.Context(), company.CompanyID, role.RoleID, string(auth.PermRolesRead)))
	require.NoError(t, e.rbac.AssignRole(t.Context(), company.CompanyID, user.UserID, role.RoleID))

	rec = e.do(t, http.MethodGet, "/v1/roles", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var roles []roleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	require.Len(t, roles, 1)
	require.Equal(t, "auditor", roles[0].Name)
}

func TestTenantRoutesRejectSuperadmin(t *testing.T) {
	e := newEnv(t)
	adminToken := e.seedSuperadmin(t)

	rec := e.do(t, http.MethodGet, "/v1/me", adminToken, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListPermissions(t *testing.T) {
	e := newEnv(t)
	_, _, token := e.seedTenant(t, "acme", "sub-123")

	rec := e.do(t, http.MethodGet, "/v1/permissions", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var perms []permissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perms))
	require.Len(t, perms, 4)
}

// The full provisioning lifecycle: an authenticated but unknown subject is
// rejected, a superadmin provisions it, and the same token then works.
func TestProvisioningLifecycle(t *testing.T) {
	e := newEnv(t)
	adminToken := e.seedSuperadmin(t)
	e.subjects.Subjects = []string{"sub-123"}

	subjectToken := e.token(t, "sub-123")

	rec := e.do(t, http.MethodGet, "/v1/me", subjectToken, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/admin/companies", adminToken,
		`{"name": "Acme Corp", "slug": "acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var company companyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))

	rec = e.do(t, http.MethodPost, "/admin/companies/"+company.CompanyID+"/users",
		adminToken, `{"subject": "sub-123", "email": "user@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/me", subjectToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "user@example.com", me.Email)
	require.Equal(t, "acme", me.CompanySlug)
	require.Empty(t, me.Permissions)
}
