package app

import (
	"context"
	"sync"
	"testing"

	"goexact/adapters/resultlog"
	"goexact/domain/transactions"
	"goexact/internal/config"
	"goexact/internal/errors"
	"goexact/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testEngine = config.EngineConfig{
	GridPoints: 20,
	GridWindow: 0.1,
	Workers:    2,
	Tolerance:  1e-9,
	ScanFloor:  1e-10,
}

// labelledFixture has 20 transactions, the first 10 positive. Item 1 appears
// in 8 of them, 5 positive; item 2 appears everywhere; item 3 in 6, all
// positive.
func labelledFixture(t *testing.T) *transactions.LabelledDatabase {
	t.Helper()
	withItem1 := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 10: true, 11: true, 12: true}
	rows := make([]transactions.Itemset, 20)
	labels := make(transactions.Labels, 20)
	for i := range rows {
		items := []int{2}
		if withItem1[i] {
			items = append(items, 1)
		}
		if i < 6 {
			items = append(items, 3)
		}
		set, err := transactions.NewItemset(items)
		require.NoError(t, err)
		rows[i] = set
		if i < 10 {
			labels[i] = 1
		}
	}
	ld, err := transactions.NewLabelledDatabase(transactions.NewDatabase(rows), labels)
	require.NoError(t, err)
	return ld
}

type memResultRepository struct {
	mu      sync.Mutex
	results map[uuid.UUID]*models.BarnardResult
	fail    error
}

func newMemResultRepository() *memResultRepository {
	return &memResultRepository{results: make(map[uuid.UUID]*models.BarnardResult)}
}

func (r *memResultRepository) SaveBarnardResult(_ context.Context, result *models.BarnardResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	cp := *result
	r.results[result.ID] = &cp
	return nil
}

func (r *memResultRepository) GetBarnardResult(_ context.Context, id uuid.UUID) (*models.BarnardResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[id]; ok {
		return res, nil
	}
	return nil, errors.NotFound("barnard result " + id.String())
}

func (r *memResultRepository) ListByRun(_ context.Context, runID string) ([]*models.BarnardResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BarnardResult
	for _, res := range r.results {
		if res.RunID == runID {
			out = append(out, res)
		}
	}
	return out, nil
}

type captureSink struct {
	mu   sync.Mutex
	rows []resultlog.Row
}

func (s *captureSink) Append(row resultlog.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}
