package postgres

import (
	"context"
	"database/sql"

	"goexact/internal/errors"
	"goexact/models"
	"goexact/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ResultRepositoryImpl implements ResultRepository for PostgreSQL
type ResultRepositoryImpl struct {
	db *sqlx.DB
}

// NewResultRepository creates a new PostgreSQL result repository
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &ResultRepositoryImpl{db: db}
}

const resultColumns = `id, run_id, n, n1, x, a, p_value, pi, mle_p_value, evaluated, failed, grid_points, created_at`

// SaveBarnardResult inserts or replaces a result keyed by its ID
func (r *ResultRepositoryImpl) SaveBarnardResult(ctx context.Context, result *models.BarnardResult) error {
	if result.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		result.ID = id
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO barnard_results (
			id, run_id, n, n1, x, a, p_value, pi, mle_p_value, evaluated, failed, grid_points, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			p_value = EXCLUDED.p_value,
			pi = EXCLUDED.pi,
			mle_p_value = EXCLUDED.mle_p_value,
			evaluated = EXCLUDED.evaluated,
			failed = EXCLUDED.failed,
			grid_points = EXCLUDED.grid_points`,
		result.ID, result.RunID, result.N, result.N1, result.X, result.A,
		result.PValue, result.Pi, result.MLEPValue, result.Evaluated, result.Failed, result.GridPoints)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to save barnard result"))
	}
	return nil
}

// GetBarnardResult retrieves a result by ID
func (r *ResultRepositoryImpl) GetBarnardResult(ctx context.Context, id uuid.UUID) (*models.BarnardResult, error) {
	var result models.BarnardResult
	err := r.db.GetContext(ctx, &result, `SELECT `+resultColumns+` FROM barnard_results WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("barnard result " + id.String())
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to get barnard result"))
	}
	return &result, nil
}

// ListByRun returns the results of one run
func (r *ResultRepositoryImpl) ListByRun(ctx context.Context, runID string) ([]*models.BarnardResult, error) {
	var results []*models.BarnardResult
	err := r.db.SelectContext(ctx, &results, `
		SELECT `+resultColumns+` FROM barnard_results
		WHERE run_id = $1
		ORDER BY x, a`, runID)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to list barnard results"))
	}
	return results, nil
}
