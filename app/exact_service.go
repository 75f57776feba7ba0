package app

import (
	"context"
	"time"

	"goexact/adapters/cache"
	"goexact/adapters/resultlog"
	"goexact/adapters/stats/exact"
	"goexact/domain/contingency"
	"goexact/domain/core"
	"goexact/domain/transactions"
	"goexact/internal/config"
	"goexact/internal/errors"
	"goexact/models"
	"goexact/ports"

	"go.uber.org/zap"
)

// ResultSink receives one row per grid maximisation.
type ResultSink interface {
	Append(row resultlog.Row) error
}

// ExactService exposes the exact tests to the CLI and the HTTP API
type ExactService struct {
	engine  config.EngineConfig
	cache   *cache.DistributionCache
	results ports.ResultRepository
	sink    ResultSink
	logger  *zap.Logger
}

// ExactServiceOption configures optional collaborators
type ExactServiceOption func(*ExactService)

// WithDistributionCache answers fixed-pi Barnard queries from shared distributions
func WithDistributionCache(c *cache.DistributionCache) ExactServiceOption {
	return func(s *ExactService) { s.cache = c }
}

// WithResultRepository persists every grid maximisation
func WithResultRepository(r ports.ResultRepository) ExactServiceOption {
	return func(s *ExactService) { s.results = r }
}

// WithResultSink appends every grid maximisation to a results file
func WithResultSink(sink ResultSink) ExactServiceOption {
	return func(s *ExactService) { s.sink = sink }
}

// NewExactService creates an exact-test service
func NewExactService(engine config.EngineConfig, logger *zap.Logger, opts ...ExactServiceOption) *ExactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExactService{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ItemsetEvaluation is the recomputed table of one itemset.
type ItemsetEvaluation struct {
	Items  transactions.Itemset `json:"items"`
	A      int                  `json:"a"`
	X      int                  `json:"x"`
	PValue float64              `json:"p_value"`
}

// EvaluateItemset counts the transactions containing itemset (x) and the
// positive ones among them (a), and tests the resulting table with Fisher's
// exact test. An empty variant means min-tail.
func (s *ExactService) EvaluateItemset(ld *transactions.LabelledDatabase, itemset transactions.Itemset, variant exact.FisherVariant) (ItemsetEvaluation, error) {
	if variant == "" {
		variant = exact.FisherMinTailVariant
	}
	c := ld.Cell(itemset)
	p, err := exact.Fisher(variant, ld.Margins(), c)
	if err != nil {
		return ItemsetEvaluation{}, errors.Wrapf(err, "evaluate itemset %v", itemset)
	}
	return ItemsetEvaluation{Items: itemset, A: c.A, X: c.X, PValue: p}, nil
}

// FisherResult is one Fisher test. Table holds the counts as
// [[a, b], [c, d]] with rows positive/negative and columns with/without the
// pattern; TableProbability is the hypergeometric probability of exactly
// that table.
type FisherResult struct {
	Margins          contingency.TableMargins `json:"margins"`
	Cell             contingency.Cell         `json:"cell"`
	Table            [2][2]int                `json:"table"`
	Variant          exact.FisherVariant      `json:"variant"`
	PValue           float64                  `json:"p_value"`
	TableProbability float64                  `json:"table_probability"`
}

// Fisher runs one variant of Fisher's exact test.
func (s *ExactService) Fisher(m contingency.TableMargins, c contingency.Cell, variant exact.FisherVariant) (*FisherResult, error) {
	if variant == "" {
		variant = exact.FisherMinTailVariant
	}
	p, err := exact.Fisher(variant, m, c)
	if err != nil {
		return nil, err
	}
	res := &FisherResult{Margins: m, Cell: c, Variant: variant, PValue: p}
	// A degenerate column passes the test whatever a is; the table itself is
	// only reported when a is feasible.
	if m.ValidateCell(c) != nil {
		return res, nil
	}
	pmf, err := exact.HypergeometricPMF(m, c.X)
	if err != nil {
		return nil, err
	}
	a, b, cc, d := contingency.Table{Margins: m, Cell: c}.Counts()
	res.Table = [2][2]int{{a, b}, {cc, d}}
	res.TableProbability = pmf[c.A]
	return res, nil
}

// BarnardRequest describes one Barnard evaluation.
type BarnardRequest struct {
	Margins contingency.TableMargins
	Cell    contingency.Cell
	// Pi fixes the nuisance value when Maximize is false; zero means x/n.
	Pi float64
	// Maximize searches Grid, or the configured default grid when Grid is empty.
	Maximize bool
	Grid     exact.NuisanceGrid
	// Refine adds adaptive refinement passes around the grid maximum.
	Refine bool
	RunID  core.RunID
}

// BarnardResult is a Barnard p-value, either at a fixed pi or maximised over a
// grid. A maximised PValue is a lower bound on the supremum over (0,1).
type BarnardResult struct {
	ID        string                   `json:"id,omitempty"`
	RunID     string                   `json:"run_id,omitempty"`
	Margins   contingency.TableMargins `json:"margins"`
	Cell      contingency.Cell         `json:"cell"`
	PValue    float64                  `json:"p_value"`
	Pi        float64                  `json:"pi"`
	Maximized bool                     `json:"maximized"`
	// MLEPValue is the p-value at pi = x/n; zero for a degenerate column margin.
	MLEPValue float64            `json:"mle_p_value,omitempty"`
	Evaluated int                `json:"evaluated,omitempty"`
	Failed    int                `json:"failed,omitempty"`
	Summary   *exact.GridSummary `json:"summary,omitempty"`
	Points    []exact.GridPoint  `json:"points,omitempty"`
}

// BarnardPValue evaluates Barnard's test for one table.
func (s *ExactService) BarnardPValue(ctx context.Context, req BarnardRequest) (*BarnardResult, error) {
	m, c := req.Margins, req.Cell
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.ValidateCell(c); err != nil {
		return nil, err
	}
	table := contingency.Table{Margins: m, Cell: c}

	result := &BarnardResult{Margins: m, Cell: c}
	if !table.Degenerate() {
		mle, err := s.pvalueAt(m, c, table.MLE())
		if err != nil {
			return nil, err
		}
		result.MLEPValue = mle
	}

	if !req.Maximize {
		pi := req.Pi
		if pi == 0 {
			if table.Degenerate() {
				return nil, errors.DomainError("x=%d leaves pi=x/n outside (0,1); pass pi or maximise over a grid", c.X)
			}
			pi = table.MLE()
		}
		p, err := s.pvalueAt(m, c, pi)
		if err != nil {
			return nil, err
		}
		result.PValue, result.Pi = p, pi
		return result, nil
	}

	grid, err := s.gridFor(table, req.Grid)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	opts := exact.GridOptions{Workers: s.engine.Workers}
	best, err := exact.Maximize(ctx, m, c, grid, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "maximise barnard over %d grid points", len(grid))
	}
	// Report the grid's own value at x/n so both figures share one evaluation.
	if !table.Degenerate() {
		for _, pt := range best.Points {
			if pt.Pi == table.MLE() {
				result.MLEPValue = pt.PValue
			}
		}
	}
	if req.Refine {
		if best, err = exact.Refine(ctx, m, c, best, exact.RefineOptions{GridOptions: opts}); err != nil {
			return nil, errors.Wrap(err, "refine barnard maximum")
		}
	}
	for _, f := range best.Failures {
		s.logger.Warn("grid point skipped", zap.Float64("pi", f.Pi), zap.Error(f.Err))
	}

	summary, err := best.Summary()
	if err != nil {
		return nil, err
	}
	result.PValue = best.PValue
	result.Pi = best.Pi
	result.Maximized = true
	result.Evaluated = best.Evaluated
	result.Failed = len(best.Failures)
	result.Summary = &summary
	result.Points = best.Points

	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	result.RunID = runID.String()

	s.logger.Info("barnard maximised",
		zap.String("run_id", result.RunID),
		zap.Stringer("margins", m),
		zap.Int("x", c.X),
		zap.Int("a", c.A),
		zap.Float64("p_value", result.PValue),
		zap.Float64("pi", result.Pi),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", time.Since(start)))

	if err := s.record(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ExactService) pvalueAt(m contingency.TableMargins, c contingency.Cell, pi float64) (float64, error) {
	if s.cache == nil {
		return exact.BarnardAtPi(m, c, pi)
	}
	d, err := s.cache.Get(m, pi)
	if err != nil {
		return 0, err
	}
	return d.PValue(c)
}

// gridFor returns grid when supplied, else the configured window around x/n,
// or a uniform grid when x/n is 0 or 1. A supplied grid must lie in (0,1) and
// always gains x/n for a non-degenerate table, so the maximum is never below
// the p-value at x/n.
func (s *ExactService) gridFor(table contingency.Table, grid exact.NuisanceGrid) (exact.NuisanceGrid, error) {
	if len(grid) > 0 {
		supplied, err := exact.GridFrom(grid)
		if err != nil {
			return nil, err
		}
		if table.Degenerate() {
			return supplied, nil
		}
		return exact.NewGrid(append(supplied, table.MLE())), nil
	}
	if table.Degenerate() {
		return exact.UniformGrid(s.engine.GridPoints)
	}
	return exact.CenteredGrid(table.MLE(), s.engine.GridWindow, s.engine.GridPoints)
}

func (s *ExactService) record(ctx context.Context, result *BarnardResult) error {
	if s.sink != nil {
		row := resultlog.Row{
			RunID: result.RunID,
			N:     result.Margins.N, N1: result.Margins.N1,
			X: result.Cell.X, A: result.Cell.A,
			PValue: result.PValue, Pi: result.Pi,
			Evaluated: result.Evaluated, Failed: result.Failed,
		}
		if err := s.sink.Append(row); err != nil {
			return errors.Wrap(err, "append result row")
		}
	}
	if s.results == nil {
		return nil
	}

	points := make(models.PointList, len(result.Points))
	for i, p := range result.Points {
		points[i] = models.PiPValue{Pi: p.Pi, PValue: p.PValue}
	}
	record := &models.BarnardResult{
		RunID:      result.RunID,
		N:          result.Margins.N,
		N1:         result.Margins.N1,
		X:          result.Cell.X,
		A:          result.Cell.A,
		PValue:     result.PValue,
		Pi:         result.Pi,
		MLEPValue:  result.MLEPValue,
		Evaluated:  result.Evaluated,
		Failed:     result.Failed,
		GridPoints: points,
	}
	if err := s.results.SaveBarnardResult(ctx, record); err != nil {
		return errors.Wrap(err, "persist barnard result")
	}
	result.ID = record.ID.String()
	return nil
}

// ScanRequest describes a cell scan at fixed margins and column margin x.
type ScanRequest struct {
	Margins  contingency.TableMargins
	X        int
	Fisher   exact.FisherVariant
	Floor    float64 // zero means the configured floor
	Maximize bool    // add grid-maximised Barnard p-values
}

// Scan compares Fisher and Barnard over the cell counts around x*n1/n.
func (s *ExactService) Scan(ctx context.Context, req ScanRequest) ([]exact.ScanRow, error) {
	floor := req.Floor
	if floor == 0 {
		floor = s.engine.ScanFloor
	}
	opts := exact.ScanOptions{
		Floor:       floor,
		Fisher:      req.Fisher,
		GridOptions: exact.GridOptions{Workers: s.engine.Workers},
	}
	if req.Maximize && req.X > 0 && req.X < req.Margins.N {
		grid, err := exact.CenteredGrid(float64(req.X)/float64(req.Margins.N), s.engine.GridWindow, s.engine.GridPoints)
		if err != nil {
			return nil, err
		}
		opts.Grid = grid
	}

	start := time.Now()
	rows, err := exact.ScanCells(ctx, req.Margins, req.X, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cell scan complete",
		zap.Stringer("margins", req.Margins),
		zap.Int("x", req.X),
		zap.Int("rows", len(rows)),
		zap.Bool("maximized", len(opts.Grid) > 0),
		zap.Duration("elapsed", time.Since(start)))
	return rows, nil
}
