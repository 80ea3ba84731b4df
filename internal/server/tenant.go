package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/emitrack/emitrack/internal/auth"
	"github.com/emitrack/emitrack/internal/models"
)

type roleResponse struct {
	RoleID    string    `json:"role_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toRoleResponses(roles []*models.Role) []roleResponse {
	res := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		res = append(res, roleResponse{
			RoleID:    role.RoleID.String(),
			Name:      role.Name,
			CreatedAt: role.CreatedAt,
		})
	}

	return res
}

type meResponse struct {
	UserID      string         `json:"user_id"`
	Email       string         `json:"email"`
	Company     string         `json:"company"`
	CompanySlug string         `json:"company_slug"`
	Roles       []roleResponse `json:"roles"`
	Permissions []string       `json:"permissions"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	access := principal.Access.(auth.TenantAccess)

	profile, err := s.rbac.GetAccessProfile(r.Context(), principal.User.UserID, access.CompanyID)
	if err != nil {
		writeInternalError(w, r, err, "failed to load access profile")

		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:      principal.User.UserID.String(),
		Email:       principal.User.Email,
		Company:     principal.Company.Name,
		CompanySlug: principal.Company.Slug,
		Roles:       toRoleResponses(profile.Roles),
		Permissions: profile.Permissions,
	})
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	access := principal.Access.(auth.TenantAccess)

	if err := s.authz.Require(r.Context(), principal, auth.PermRolesRead); err != nil {
		if errors.Is(err, auth.ErrPermissionDenied) {
			writeError(w, http.StatusForbidden, "forbidden")

			return
		}

		writeInternalError(w, r, err, "permission check failed")

		return
	}

	roles, err := s.rbac.ListRoles(r.Context(), access.CompanyID)
	if err != nil {
		writeInternalError(w, r, err, "failed to list roles")

		return
	}

	writeJSON(w, http.StatusOK, toRoleResponses(roles))
}

type permissionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := s.rbac.ListPermissions(r.Context())
	if err != nil {
		writeInternalError(w, r, err, "failed to list permissions")

		return
	}

	res := make([]permissionResponse, 0, len(permissions))
	for _, perm := range permissions {
		res = append(res, permissionResponse{
			Name:        perm.Name,
			Description: perm.Description,
		})
	}

	writeJSON(w, http.StatusOK, res)
}
