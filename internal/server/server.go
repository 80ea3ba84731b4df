// Package server exposes the HTTP surface: platform administration behind the
// superadmin gate, and tenant routes that run inside the caller's company
// scope.
package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/emitrack/emitrack/internal/auth"
	"github.com/emitrack/emitrack/internal/idp"
	"github.com/emitrack/emitrack/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	companies store.CompanyStore
	users     store.UserStore
	rbac      store.RBACStore
	authz     *auth.Authorizer
	subjects  idp.SubjectChecker
}

// New creates a server with the given stores and collaborators.
func New(
	companies store.CompanyStore,
	users store.UserStore,
	rbac store.RBACStore,
	authz *auth.Authorizer,
	subjects idp.SubjectChecker,
) *Server {
	return &Server{
		companies: companies,
		users:     users,
		rbac:      rbac,
		authz:     authz,
		subjects:  subjects,
	}
}

// Routes builds the HTTP handler. Ordering is the security contract: every
// route below the authentication middleware sees a resolved principal, and
// the admin routes additionally sit behind the superadmin gate.
func (s *Server) Routes(log zerolog.Logger, mw *auth.Middleware) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Platform routes: cross-tenant administration.
	admin := http.NewServeMux()
	admin.HandleFunc("GET /admin/companies", s.handleListCompanies)
	admin.HandleFunc("POST /admin/companies", s.handleCreateCompany)
	admin.HandleFunc("POST /admin/companies/{id}/users", s.handleProvisionUser)
	mux.Handle("/admin/", mw.Authenticate(auth.RequireSuperadmin(admin)))

	// Tenant routes: every data access is confined to the caller's company.
	tenant := http.NewServeMux()
	tenant.HandleFunc("GET /v1/me", s.handleMe)
	tenant.HandleFunc("GET /v1/roles", s.handleListRoles)
	tenant.HandleFunc("GET /v1/permissions", s.handleListPermissions)
	mux.Handle("/v1/", mw.Authenticate(auth.RequireTenant(tenant)))

	return AccessLog(log, mux)
}

// AccessLog attaches the logger to the request context and logs one line per
// request with status and duration.
func AccessLog(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		r = r.WithContext(log.WithContext(r.Context()))
		next.ServeHTTP(sw, r)

		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(started)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
