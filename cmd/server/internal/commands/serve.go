package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/cors"

	"github.com/emitrack/emitrack/internal/auth"
	"github.com/emitrack/emitrack/internal/idp"
	"github.com/emitrack/emitrack/internal/logger"
	"github.com/emitrack/emitrack/internal/server"
	"github.com/emitrack/emitrack/internal/store"
	memorystore "github.com/emitrack/emitrack/internal/store/memory"
	postgresstore "github.com/emitrack/emitrack/internal/store/postgres"
)

type ServeCmd struct {
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"EMITRACK_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"EMITRACK_CORS_ORIGINS"`

	// Identity provider configuration
	CognitoRegion     string `help:"AWS region of the Cognito user pool" env:"EMITRACK_COGNITO_REGION"`
	CognitoUserPoolID string `help:"Cognito user pool ID" env:"EMITRACK_COGNITO_USER_POOL_ID"`
	JWKSURL           string `help:"JWKS endpoint override (defaults to the Cognito well-known URL)" env:"EMITRACK_JWKS_URL"`

	// Store configuration
	StoreType string        `help:"store type (memory or postgres)" default:"postgres" env:"EMITRACK_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	jwksURL := c.JWKSURL
	if jwksURL == "" {
		if c.CognitoRegion == "" || c.CognitoUserPoolID == "" {
			return errors.New("Cognito region and user pool ID are required (--cognito-region, --cognito-user-pool-id) unless --jwks-url is set")
		}
		jwksURL = auth.CognitoJWKSURL(c.CognitoRegion, c.CognitoUserPoolID)
	}

	var (
		companyStore store.CompanyStore
		userStore    store.UserStore
		rbacStore    store.RBACStore
		subjects     idp.SubjectChecker
	)

	switch c.StoreType {
	case "postgres":
		pool, err := c.Postgres.connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runner := postgresstore.NewTxRunner(pool)
		companyStore = postgresstore.NewCompanyStore(runner)
		userStore = postgresstore.NewUserStore(pool, runner)
		rbacStore = postgresstore.NewRBACStore(pool, runner)
		log.Info().Msg("Using PostgreSQL stores")

		cognito, err := idp.NewCognito(ctx, c.CognitoRegion, c.CognitoUserPoolID)
		if err != nil {
			return fmt.Errorf("failed to create Cognito client: %w", err)
		}
		subjects = cognito

	default:
		companyStore = memorystore.NewCompanyStore()
		userStore = memorystore.NewUserStore()
		rbac := memorystore.NewRBACStore()
		rbac.SeedPermissions(
			string(auth.PermSettingsRead), string(auth.PermSettingsWrite),
			string(auth.PermEmissionsRead), string(auth.PermEmissionsWrite),
			string(auth.PermUsersManage),
			string(auth.PermRolesRead), string(auth.PermRolesManage),
		)
		rbacStore = rbac
		subjects = &idp.Static{AllowAll: true}
		log.Info().Msg("Using in-memory stores")
		log.Warn().Msg("Identity provider checks are disabled with the memory store. This should only be used in development!")
	}

	keys := auth.NewKeySetCache(jwksURL, nil)
	verifier := auth.NewVerifier(keys)
	resolver := auth.NewResolver(userStore, companyStore)
	authz := auth.NewAuthorizer(rbacStore)
	mw := auth.NewMiddleware(verifier, resolver)

	srv := server.New(companyStore, userStore, rbacStore, authz, subjects)
	handler := withCORS(c.CORSOrigins, srv.Routes(log, mw))

	log.Info().Str("addr", c.Listen).Str("jwks_url", jwksURL).Msg("Starting HTTP server")
	return configureHTTPServer(c.Listen, handler).ListenAndServe()
}

func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return middleware.Handler(h)
}
