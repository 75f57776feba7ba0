package exact

import (
	"context"
	"math"
	"runtime"
	"sort"

	"goexact/domain/contingency"
	"goexact/internal/errors"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// NuisanceGrid is an ascending sequence of candidate pi values, all in (0,1).
type NuisanceGrid []float64

// CenteredGrid spaces points values evenly over [center(1-window),
// center(1+window)], adds center itself, and drops anything outside (0,1).
// A window of 0 or a single point yields just the center.
func CenteredGrid(center, window float64, points int) (NuisanceGrid, error) {
	if err := validatePi(center); err != nil {
		return nil, errors.Wrap(err, "grid center")
	}
	if math.IsNaN(window) || window < 0 {
		return nil, errors.DomainError("grid window %g must be non-negative", window)
	}
	if points < 1 {
		return nil, errors.DomainError("grid needs at least one point, got %d", points)
	}
	if window == 0 || points == 1 {
		return NuisanceGrid{center}, nil
	}

	span := floats.Span(make([]float64, points), center*(1-window), center*(1+window))
	return NewGrid(append(span, center)), nil
}

// UniformGrid spaces points values evenly over the open interval (0,1),
// excluding both ends. Used when there is no estimate to centre on, as for a
// table whose column margin is 0 or n.
func UniformGrid(points int) (NuisanceGrid, error) {
	if points < 1 {
		return nil, errors.DomainError("grid needs at least one point, got %d", points)
	}
	span := floats.Span(make([]float64, points+2), 0, 1)
	return NewGrid(span[1 : points+1]), nil
}

// GridFrom builds a grid from caller-supplied values. Unlike NewGrid it
// rejects, rather than drops, any value outside (0,1).
func GridFrom(values []float64) (NuisanceGrid, error) {
	if len(values) == 0 {
		return nil, errors.DomainError("empty nuisance grid")
	}
	for i, v := range values {
		if err := validatePi(v); err != nil {
			return nil, errors.Wrapf(err, "grid value %d", i+1)
		}
	}
	return NewGrid(values), nil
}

// NewGrid sorts values, removes duplicates and drops values outside (0,1).
// Callers holding user input should go through GridFrom.
func NewGrid(values []float64) NuisanceGrid {
	grid := make(NuisanceGrid, 0, len(values))
	for _, v := range values {
		if validatePi(v) == nil {
			grid = append(grid, v)
		}
	}
	sort.Float64s(grid)
	out := grid[:0]
	for i, v := range grid {
		if i == 0 || v != grid[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// Contains reports whether pi is one of the grid values.
func (g NuisanceGrid) Contains(pi float64) bool {
	i := sort.SearchFloat64s(g, pi)
	return i < len(g) && g[i] == pi
}

// GridOptions tune a grid evaluation.
type GridOptions struct {
	// Workers bounds concurrent grid evaluations; <= 0 means GOMAXPROCS.
	Workers int
	// Precomputed evaluates each point through a PrecomputedDistribution
	// instead of direct enumeration. Same result; worthwhile when the built
	// distribution is reused, as in MaximizeCells.
	Precomputed bool
}

func (o GridOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// GridPoint is one evaluated nuisance value.
type GridPoint struct {
	Pi     float64 `json:"pi"`
	PValue float64 `json:"p_value"`
}

// GridFailure records a grid point that could not be evaluated. A failed
// point is skipped; it only narrows the set the maximum is taken over.
type GridFailure struct {
	Pi  float64 `json:"pi"`
	Err error   `json:"-"`
}

// GridResult is the outcome of a grid maximisation.
type GridResult struct {
	PValue    float64       `json:"p_value"`
	Pi        float64       `json:"pi"`
	Evaluated int           `json:"evaluated"`
	Points    []GridPoint   `json:"points"` // ascending pi, failures excluded
	Failures  []GridFailure `json:"failures,omitempty"`
}

// Maximize evaluates BarnardAtPi at every grid value and returns the largest
// p-value with its maximising pi.
//
// Barnard's p-value is a supremum over the whole open interval (0,1). A finite
// grid can only ever return a LOWER BOUND on it: refining the grid (see
// Refine) tightens the bound but never guarantees the true supremum.
//
// Grid points are independent and are evaluated concurrently. A point whose
// evaluation fails is recorded in Failures and skipped; an error is returned
// only when the grid is empty, every point fails, or ctx is cancelled.
func Maximize(ctx context.Context, m contingency.TableMargins, c contingency.Cell, grid NuisanceGrid, opts GridOptions) (GridResult, error) {
	if len(grid) == 0 {
		return GridResult{}, errors.DomainError("empty nuisance grid")
	}
	if err := m.Validate(); err != nil {
		return GridResult{}, err
	}
	if err := m.ValidateCell(c); err != nil {
		return GridResult{}, err
	}

	pvalues := make([]float64, len(grid))
	failures := make([]error, len(grid))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, pi := range grid {
		i, pi := i, pi
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pvalues[i], failures[i] = evaluatePoint(m, c, pi, opts.Precomputed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GridResult{}, errors.Wrap(err, "nuisance grid evaluation interrupted")
	}

	return collectGrid(grid, pvalues, failures)
}

func evaluatePoint(m contingency.TableMargins, c contingency.Cell, pi float64, precomputed bool) (float64, error) {
	if !precomputed {
		return BarnardAtPi(m, c, pi)
	}
	dist, err := NewPrecomputedDistribution(m, pi)
	if err != nil {
		return 0, err
	}
	return dist.PValue(c)
}

func collectGrid(grid NuisanceGrid, pvalues []float64, failures []error) (GridResult, error) {
	result := GridResult{PValue: math.Inf(-1), Points: make([]GridPoint, 0, len(grid))}
	for i, pi := range grid {
		if failures[i] != nil {
			result.Failures = append(result.Failures, GridFailure{Pi: pi, Err: failures[i]})
			continue
		}
		result.Points = append(result.Points, GridPoint{Pi: pi, PValue: pvalues[i]})
		if pvalues[i] > result.PValue {
			result.PValue = pvalues[i]
			result.Pi = pi
		}
	}
	result.Evaluated = len(result.Points)
	if result.Evaluated == 0 {
		return result, errors.Wrap(result.Failures[0].Err, "every nuisance grid point failed")
	}
	return result, nil
}

// RefineOptions control adaptive refinement around the current maximum.
type RefineOptions struct {
	Rounds int // refinement passes; default 3
	Points int // new points per pass; default 20
	GridOptions
}

// Refine repeatedly re-grids the interval between the neighbours of the
// current argmax and re-maximises. The returned p-value never decreases from
// prev.PValue, since the previous maximiser stays in every refined grid.
// Evaluated counts distinct evaluations: the carried-over maximiser is not
// counted again. prev is not modified.
func Refine(ctx context.Context, m contingency.TableMargins, c contingency.Cell, prev GridResult, opts RefineOptions) (GridResult, error) {
	rounds, points := opts.Rounds, opts.Points
	if rounds <= 0 {
		rounds = 3
	}
	if points <= 0 {
		points = 20
	} else if points < 2 {
		points = 2
	}

	best := prev
	for r := 0; r < rounds; r++ {
		lo, hi := bracket(best)
		if !(hi > lo) {
			break
		}
		candidates := floats.Span(make([]float64, points), lo, hi)
		next, err := Maximize(ctx, m, c, NewGrid(append(candidates, best.Pi)), opts.GridOptions)
		if err != nil {
			return best, err
		}
		if next.PValue >= best.PValue {
			next.Evaluated += best.Evaluated
			if hasPoint(next.Points, best.Pi) {
				next.Evaluated--
			}
			failures := make([]GridFailure, 0, len(best.Failures)+len(next.Failures))
			failures = append(failures, best.Failures...)
			next.Failures = append(failures, next.Failures...)
			best = next
		}
	}
	return best, nil
}

func hasPoint(points []GridPoint, pi float64) bool {
	i := sort.Search(len(points), func(i int) bool { return points[i].Pi >= pi })
	return i < len(points) && points[i].Pi == pi
}

// bracket returns the neighbours of the argmax in r.Points, or a small band
// around it when the argmax sits at an end of the grid.
func bracket(r GridResult) (float64, float64) {
	i := sort.Search(len(r.Points), func(i int) bool { return r.Points[i].Pi >= r.Pi })
	lo, hi := r.Pi, r.Pi
	if i > 0 {
		lo = r.Points[i-1].Pi
	}
	if i+1 < len(r.Points) {
		hi = r.Points[i+1].Pi
	}
	if lo == hi {
		band := math.Min(r.Pi, 1-r.Pi) / 10
		lo, hi = r.Pi-band, r.Pi+band
	}
	return lo, hi
}

// GridSummary describes the spread of p-values across the evaluated grid.
type GridSummary struct {
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// Summary computes min, median and max p-value over the evaluated points.
func (r GridResult) Summary() (GridSummary, error) {
	data := make(stats.Float64Data, len(r.Points))
	for i, p := range r.Points {
		data[i] = p.PValue
	}
	lo, err := data.Min()
	if err != nil {
		return GridSummary{}, errors.Wrap(err, "grid summary")
	}
	med, err := data.Median()
	if err != nil {
		return GridSummary{}, errors.Wrap(err, "grid summary")
	}
	hi, err := data.Max()
	if err != nil {
		return GridSummary{}, errors.Wrap(err, "grid summary")
	}
	return GridSummary{Min: lo, Median: med, Max: hi}, nil
}
