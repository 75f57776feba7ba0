package ports

import (
	"context"

	"goexact/models"

	"github.com/google/uuid"
)

// ResultRepository defines the interface for persisted grid maximisations
type ResultRepository interface {
	// SaveBarnardResult stores one maximised Barnard p-value
	SaveBarnardResult(ctx context.Context, result *models.BarnardResult) error

	// GetBarnardResult retrieves a stored result by ID
	GetBarnardResult(ctx context.Context, id uuid.UUID) (*models.BarnardResult, error)

	// ListByRun returns every result recorded under a run, ordered by cell
	ListByRun(ctx context.Context, runID string) ([]*models.BarnardResult, error)
}
