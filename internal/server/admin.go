package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emitrack/emitrack/internal/models"
	"github.com/emitrack/emitrack/internal/store"
)

type companyResponse struct {
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

func toCompanyResponse(company *models.Company) companyResponse {
	return companyResponse{
		CompanyID: company.CompanyID.String(),
		Name:      company.Name,
		Slug:      company.Slug,
		CreatedAt: company.CreatedAt,
	}
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.companies.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err, "failed to list companies")

		return
	}

	res := make([]companyResponse, 0, len(companies))
	for _, company := range companies {
		res = append(res, toCompanyResponse(company))
	}

	writeJSON(w, http.StatusOK, res)
}

type createCompanyRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w)

		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(req.Slug)

	if req.Name == "" || req.Slug == "" || req.Slug == models.PlatformCompanySlug {
		writeBadRequest(w)

		return
	}

	company := &models.Company{
		CompanyID: uuid.Must(uuid.NewV7()),
		Name:      req.Name,
		Slug:      req.Slug,
	}

	if err := s.companies.Create(r.Context(), company); err != nil {
		if errors.Is(err, store.ErrCompanyAlreadyExists) {
			writeConflict(w)

			return
		}

		writeInternalError(w, r, err, "failed to create company")

		return
	}

	writeJSON(w, http.StatusCreated, toCompanyResponse(company))
}

type provisionUserRequest struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
}

type userResponse struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Subject   string `json:"subject"`
	Email     string `json:"email"`
	Active    bool   `json:"active"`
}

// handleProvisionUser attaches an identity provider subject to a company so
// the resolver will start accepting its tokens. The subject must already
// exist in the identity provider; provisioning does not create identities.
func (s *Server) handleProvisionUser(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadRequest(w)

		return
	}

	var req provisionUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w)

		return
	}

	req.Subject = strings.TrimSpace(req.Subject)
	req.Email = strings.TrimSpace(req.Email)

	if req.Subject == "" || req.Email == "" {
		writeBadRequest(w)

		return
	}

	if _, err := s.companies.Get(r.Context(), companyID); err != nil {
		if errors.Is(err, store.ErrCompanyNotFound) {
			writeNotFound(w)

			return
		}

		writeInternalError(w, r, err, "failed to load company")

		return
	}

	known, err := s.subjects.SubjectExists(r.Context(), req.Subject)
	if err != nil {
		writeInternalError(w, r, err, "failed to check subject with identity provider")

		return
	}

	if !known {
		zerolog.Ctx(r.Context()).Warn().
			Str("subject", req.Subject).
			Msg("refusing to provision unknown identity provider subject")
		writeNotFound(w)

		return
	}

	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		CompanyID: companyID,
		Subject:   req.Subject,
		Email:     req.Email,
		Active:    true,
	}

	if err := s.users.Create(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, store.ErrUserAlreadyExists):
			writeConflict(w)
		case errors.Is(err, store.ErrCompanyNotFound):
			writeNotFound(w)
		default:
			writeInternalError(w, r, err, "failed to create user")
		}

		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		UserID:    user.UserID.String(),
		CompanyID: user.CompanyID.String(),
		Subject:   user.Subject,
		Email:     user.Email,
		Active:    user.Active,
	})
}
