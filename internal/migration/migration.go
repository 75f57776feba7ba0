package migration

import (
	"context"

	"goexact/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createBarnardResultsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create barnard_results table")
	}

	if err := r.addBarnardResultsColumns(ctx, db); err != nil {
		return errors.Wrap(err, "failed to add barnard_results columns")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createBarnardResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS barnard_results (
			id UUID PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			n INTEGER NOT NULL CHECK (n >= 0),
			n1 INTEGER NOT NULL CHECK (n1 >= 0 AND n1 <= n),
			x INTEGER NOT NULL,
			a INTEGER NOT NULL,
			p_value DOUBLE PRECISION NOT NULL,
			pi DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

// addBarnardResultsColumns brings tables created before the grid diagnostics
// were stored up to date.
func (r *MigrationRunner) addBarnardResultsColumns(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		ALTER TABLE barnard_results ADD COLUMN IF NOT EXISTS mle_p_value DOUBLE PRECISION NOT NULL DEFAULT 0;
		ALTER TABLE barnard_results ADD COLUMN IF NOT EXISTS evaluated INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE barnard_results ADD COLUMN IF NOT EXISTS failed INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE barnard_results ADD COLUMN IF NOT EXISTS grid_points JSONB NOT NULL DEFAULT '[]'::jsonb;
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_barnard_results_run_id ON barnard_results(run_id);
		CREATE INDEX IF NOT EXISTS idx_barnard_results_table ON barnard_results(n, n1, x, a);
	`)
	return err
}
