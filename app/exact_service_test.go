package app

import (
	"context"
	"testing"

	"goexact/adapters/cache"
	"goexact/adapters/stats/exact"
	"goexact/domain/contingency"
	"goexact/domain/core"
	"goexact/domain/transactions"
	"goexact/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestEvaluateItemset(t *testing.T) {
	svc := NewExactService(testEngine, zaptest.NewLogger(t))
	ld := labelledFixture(t)

	tests := []struct {
		name    string
		items   transactions.Itemset
		variant exact.FisherVariant
		a, x    int
		p       float64
	}{
		{"item1_min_tail", transactions.Itemset{1}, "", 5, 8, 0.3249583234103358},
		{"item1_point", transactions.Itemset{1}, exact.FisherPointProbabilityVariant, 5, 8, 0.6499166468206716},
		{"item3", transactions.Itemset{3}, exact.FisherMinTailVariant, 6, 6, 0.005417956656346749},
		{"pair", transactions.Itemset{1, 3}, exact.FisherMinTailVariant, 5, 5, 0.016253869969040248},
		{"everywhere", transactions.Itemset{2}, "", 10, 20, 1},
		{"nowhere", transactions.Itemset{9}, "", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.EvaluateItemset(ld, tt.items, tt.variant)
			require.NoError(t, err)
			assert.Equal(t, tt.a, got.A)
			assert.Equal(t, tt.x, got.X)
			assert.InDelta(t, tt.p, got.PValue, 1e-12)
		})
	}
}

func TestFisherDefaultsToMinTail(t *testing.T) {
	svc := NewExactService(testEngine, nil)
	res, err := svc.Fisher(contingency.TableMargins{N: 20, N1: 10}, contingency.Cell{X: 8, A: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, exact.FisherMinTailVariant, res.Variant)
	assert.InDelta(t, 0.0849011669445106, res.PValue, 1e-12)
	assert.Equal(t, [2][2]int{{2, 8}, {6, 4}}, res.Table)
	assert.InDelta(t, 0.07501786139557037, res.TableProbability, 1e-12)

	degenerate, err := svc.Fisher(contingency.TableMargins{N: 15, N1: 6}, contingency.Cell{X: 0, A: 0}, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, degenerate.PValue)
	assert.Equal(t, 1.0, degenerate.TableProbability)

	_, err = svc.Fisher(contingency.TableMargins{N: 20, N1: 10}, contingency.Cell{X: 8, A: 9}, "")
	assert.True(t, errors.HasCode(err, errors.CodeInfeasibleTable))
}

func TestBarnardPValueAtMLE(t *testing.T) {
	dc, err := cache.NewDistributionCache(nil)
	require.NoError(t, err)
	defer dc.Close()

	for name, svc := range map[string]*ExactService{
		"direct": NewExactService(testEngine, zaptest.NewLogger(t)),
		"cached": NewExactService(testEngine, zaptest.NewLogger(t), WithDistributionCache(dc)),
	} {
		t.Run(name, func(t *testing.T) {
			res, err := svc.BarnardPValue(context.Background(), BarnardRequest{
				Margins: contingency.TableMargins{N: 20, N1: 10},
				Cell:    contingency.Cell{X: 8, A: 5},
			})
			require.NoError(t, err)
			assert.False(t, res.Maximized)
			assert.Equal(t, 0.4, res.Pi)
			assert.InDelta(t, 0.6823585718706096, res.PValue, 1e-12)
			assert.InDelta(t, res.PValue, res.MLEPValue, 1e-15)
		})
	}
}

func TestBarnardPValueFixedPi(t *testing.T) {
	svc := NewExactService(testEngine, nil)
	res, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins: contingency.TableMargins{N: 12, N1: 5},
		Cell:    contingency.Cell{X: 4, A: 4},
		Pi:      1.0 / 3,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.01493486577061236, res.PValue, 1e-12)

	_, err = svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins: contingency.TableMargins{N: 12, N1: 5},
		Cell:    contingency.Cell{X: 4, A: 4},
		Pi:      1.2,
	})
	assert.True(t, errors.HasCode(err, errors.CodeDomainError))
}

func TestBarnardPValueMaximizeRecordsResult(t *testing.T) {
	obs, logs := observer.New(zap.InfoLevel)
	repo := newMemResultRepository()
	sink := &captureSink{}
	svc := NewExactService(testEngine, zap.New(obs), WithResultRepository(repo), WithResultSink(sink))

	runID := core.NewRunID()
	res, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins:  contingency.TableMargins{N: 20, N1: 10},
		Cell:     contingency.Cell{X: 8, A: 5},
		Maximize: true,
		RunID:    runID,
	})
	require.NoError(t, err)

	assert.True(t, res.Maximized)
	assert.GreaterOrEqual(t, res.PValue, res.MLEPValue)
	assert.GreaterOrEqual(t, res.Evaluated, testEngine.GridPoints)
	assert.Equal(t, runID.String(), res.RunID)
	require.NotNil(t, res.Summary)
	assert.Equal(t, res.PValue, res.Summary.Max)
	assert.NotEmpty(t, res.ID)

	stored, err := repo.ListByRun(context.Background(), runID.String())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.PValue, stored[0].PValue)
	assert.Len(t, stored[0].GridPoints, res.Evaluated)

	require.Len(t, sink.rows, 1)
	assert.Equal(t, 5, sink.rows[0].A)
	assert.Equal(t, res.Pi, sink.rows[0].Pi)

	entries := logs.FilterMessage("barnard maximised").All()
	require.Len(t, entries, 1)
	assert.Equal(t, runID.String(), entries[0].ContextMap()["run_id"])
}

func TestBarnardPValueMaximizeSuppliedGridAndRefine(t *testing.T) {
	svc := NewExactService(testEngine, zaptest.NewLogger(t))
	m := contingency.TableMargins{N: 20, N1: 10}
	c := contingency.Cell{X: 8, A: 3}

	coarse, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins: m, Cell: c, Maximize: true,
		Grid: exact.NuisanceGrid{0.6, 0.2, 0.4},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, coarse.Evaluated)

	_, err = svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins: m, Cell: c, Maximize: true,
		Grid: exact.NuisanceGrid{0.6, 0.2, 0.4, 1.5},
	})
	assert.True(t, errors.HasCode(err, errors.CodeDomainError))

	refined, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins: m, Cell: c, Maximize: true, Refine: true,
		Grid: exact.NuisanceGrid{0.2, 0.4, 0.6},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, refined.PValue, coarse.PValue)
	assert.Greater(t, refined.Evaluated, coarse.Evaluated)
}

func TestBarnardPValueSuppliedGridGainsMLE(t *testing.T) {
	svc := NewExactService(testEngine, zaptest.NewLogger(t))
	m := contingency.TableMargins{N: 20, N1: 10}
	c := contingency.Cell{X: 8, A: 5}

	res, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins: m, Cell: c, Maximize: true,
		Grid: exact.NuisanceGrid{0.05, 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Evaluated)
	assert.Zero(t, res.Failed)
	assert.InDelta(t, 0.6823585718706096, res.MLEPValue, 1e-12)
	assert.GreaterOrEqual(t, res.PValue, res.MLEPValue)
}

func TestBarnardPValueDegenerateColumn(t *testing.T) {
	svc := NewExactService(testEngine, zaptest.NewLogger(t))
	m := contingency.TableMargins{N: 15, N1: 6}

	_, err := svc.BarnardPValue(context.Background(), BarnardRequest{Margins: m, Cell: contingency.Cell{X: 0, A: 0}})
	assert.True(t, errors.HasCode(err, errors.CodeDomainError))

	res, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins: m, Cell: contingency.Cell{X: 0, A: 0}, Maximize: true,
	})
	require.NoError(t, err)
	assert.Equal(t, testEngine.GridPoints, res.Evaluated)
	assert.Zero(t, res.MLEPValue)
	assert.True(t, res.PValue > 0 && res.PValue <= 1, "p=%v", res.PValue)
	for _, pt := range res.Points {
		assert.LessOrEqual(t, pt.PValue, 1.0, "pi=%v", pt.Pi)
	}
}

func TestBarnardPValueRejectsInfeasibleCell(t *testing.T) {
	svc := NewExactService(testEngine, nil)
	_, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins:  contingency.TableMargins{N: 20, N1: 10},
		Cell:     contingency.Cell{X: 15, A: 2},
		Maximize: true,
	})
	assert.True(t, errors.HasCode(err, errors.CodeInfeasibleTable))
}

func TestBarnardPValuePersistenceFailure(t *testing.T) {
	repo := newMemResultRepository()
	repo.fail = errors.New(errors.CodeDatabaseError, "connection refused")
	svc := NewExactService(testEngine, zaptest.NewLogger(t), WithResultRepository(repo))

	_, err := svc.BarnardPValue(context.Background(), BarnardRequest{
		Margins:  contingency.TableMargins{N: 20, N1: 10},
		Cell:     contingency.Cell{X: 8, A: 5},
		Maximize: true,
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDatabaseError))
}

func TestScan(t *testing.T) {
	svc := NewExactService(testEngine, zaptest.NewLogger(t))
	rows, err := svc.Scan(context.Background(), ScanRequest{
		Margins:  contingency.TableMargins{N: 30, N1: 12},
		X:        7,
		Floor:    1e-4,
		Maximize: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for i, r := range rows {
		if i > 0 {
			assert.Greater(t, r.A, rows[i-1].A)
		}
		assert.Greater(t, r.Fisher, 1e-4)
		assert.GreaterOrEqual(t, r.BarnardMax, r.Barnard-1e-12)
	}

	_, err = svc.Scan(context.Background(), ScanRequest{Margins: contingency.TableMargins{N: 30, N1: 12}, X: 0})
	assert.True(t, errors.HasCode(err, errors.CodeDomainError))
}
