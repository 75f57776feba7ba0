package exact

import (
	"context"
	"math"

	"goexact/domain/contingency"
	"goexact/internal/errors"

	"golang.org/x/sync/errgroup"
)

// CellMaximum is the grid-maximised Barnard p-value of one cell.
type CellMaximum struct {
	Cell   contingency.Cell `json:"cell"`
	PValue float64          `json:"p_value"`
	Pi     float64          `json:"pi"`
}

// MaximizeCells maximises Barnard's p-value over grid for many cells sharing
// the same margins. Each grid value builds one PrecomputedDistribution and
// answers every cell from it, so the population is enumerated len(grid)
// times instead of len(grid)*len(cells).
//
// As with Maximize, the results are lower bounds on the true suprema, and
// grid values whose distribution cannot be built are reported and skipped.
func MaximizeCells(ctx context.Context, m contingency.TableMargins, cells []contingency.Cell, grid NuisanceGrid, opts GridOptions) ([]CellMaximum, []GridFailure, error) {
	if len(grid) == 0 {
		return nil, nil, errors.DomainError("empty nuisance grid")
	}
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	for _, c := range cells {
		if err := m.ValidateCell(c); err != nil {
			return nil, nil, err
		}
	}

	rows := make([][]float64, len(grid))
	failures := make([]error, len(grid))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, pi := range grid {
		i, pi := i, pi
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i], failures[i] = queryAll(m, cells, pi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, "batch grid evaluation interrupted")
	}

	out := make([]CellMaximum, len(cells))
	for j, c := range cells {
		out[j] = CellMaximum{Cell: c, PValue: math.Inf(-1)}
	}
	var failed []GridFailure
	for i, pi := range grid {
		if failures[i] != nil {
			failed = append(failed, GridFailure{Pi: pi, Err: failures[i]})
			continue
		}
		for j, p := range rows[i] {
			if p > out[j].PValue {
				out[j].PValue = p
				out[j].Pi = pi
			}
		}
	}
	if len(failed) == len(grid) {
		return nil, failed, errors.Wrap(failed[0].Err, "every nuisance grid point failed")
	}
	return out, failed, nil
}

func queryAll(m contingency.TableMargins, cells []contingency.Cell, pi float64) ([]float64, error) {
	dist, err := NewPrecomputedDistribution(m, pi)
	if err != nil {
		return nil, err
	}
	row := make([]float64, len(cells))
	for j, c := range cells {
		if row[j], err = dist.PValue(c); err != nil {
			return nil, err
		}
	}
	return row, nil
}
