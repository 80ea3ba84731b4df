package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/emitrack/emitrack/internal/logger"
	"github.com/emitrack/emitrack/internal/models"
	"github.com/emitrack/emitrack/internal/store"
	postgresstore "github.com/emitrack/emitrack/internal/store/postgres"
)

// SeedSuperadminCmd bootstraps the first platform operator. It is idempotent:
// re-running it for an existing subject just ensures the superadmin flag is
// set.
type SeedSuperadminCmd struct {
	Subject string `arg:"" help:"Identity provider subject of the superadmin"`
	Email   string `arg:"" help:"Email address of the superadmin"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *SeedSuperadminCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx := context.Background()

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgresstore.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	runner := postgresstore.NewTxRunner(pool)
	companies := postgresstore.NewCompanyStore(runner)
	users := postgresstore.NewUserStore(pool, runner)

	platform, err := companies.GetBySlug(ctx, models.PlatformCompanySlug)
	if errors.Is(err, store.ErrCompanyNotFound) {
		platform = &models.Company{
			CompanyID: uuid.Must(uuid.NewV7()),
			Name:      models.PlatformCompanyName,
			Slug:      models.PlatformCompanySlug,
		}
		if err := companies.Create(ctx, platform); err != nil {
			return fmt.Errorf("failed to create platform company: %w", err)
		}
		log.Info().Str("company_id", platform.CompanyID.String()).Msg("Created platform company")
	} else if err != nil {
		return fmt.Errorf("failed to look up platform company: %w", err)
	}

	user, err := users.GetBySubject(ctx, c.Subject)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		user = &models.User{
			UserID:     uuid.Must(uuid.NewV7()),
			CompanyID:  platform.CompanyID,
			Subject:    c.Subject,
			Email:      c.Email,
			Active:     true,
			Superadmin: true,
		}
		if err := users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create superadmin user: %w", err)
		}
		log.Info().Str("user_id", user.UserID.String()).Str("subject", c.Subject).Msg("Created superadmin user")

	case err != nil:
		return fmt.Errorf("failed to look up user: %w", err)

	case user.Superadmin:
		log.Info().Str("user_id", user.UserID.String()).Msg("User is already a superadmin")

	default:
		if user.CompanyID != platform.CompanyID {
			return fmt.Errorf("subject %s belongs to another company and cannot be promoted", c.Subject)
		}
		if err := users.Promote(ctx, user.UserID); err != nil {
			return fmt.Errorf("failed to promote user: %w", err)
		}
		log.Info().Str("user_id", user.UserID.String()).Msg("Promoted existing user to superadmin")
	}

	return nil
}
