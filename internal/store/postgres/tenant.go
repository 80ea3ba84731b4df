package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner owns both transaction demarcation and the row-level-security
// markers, so there is no window in which a query can run on a connection
// carrying a stale marker from another tenant.
//
// Both markers are set with set_config(..., is_local => true), which scopes
// them to the current transaction: commit or rollback clears them before the
// connection returns to the pool. Nothing here ever touches session-level
// settings.
//
// Scoped and Unscoped are distinct methods rather than a parameter; a caller
// that does not deliberately choose the platform path gets tenant scoping.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner creates a transaction runner on the shared pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Scoped runs fn inside a transaction whose queries are confined to the given
// company's rows. The marker is in place before fn observes the transaction,
// so no tenant-scoped query can run unscoped.
func (r *TxRunner) Scoped(ctx context.Context, companyID uuid.UUID, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if companyID == uuid.Nil {
		return fmt.Errorf("company id is required for a scoped transaction")
	}

	return r.run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.current_company_id', $1, true)`, companyID.String()); err != nil {
			return fmt.Errorf("failed to set tenant marker: %w", err)
		}
		return fn(ctx, tx)
	})
}

// Unscoped runs fn inside a transaction that operates across all tenants.
// Only code behind the superadmin gate and the bootstrap command may take
// this path.
func (r *TxRunner) Unscoped(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return r.run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.is_superadmin', 'true', true)`); err != nil {
			return fmt.Errorf("failed to set platform marker: %w", err)
		}
		return fn(ctx, tx)
	})
}

func (r *TxRunner) run(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback on error or context cancellation; no-op after a commit.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
