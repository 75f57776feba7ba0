package exact

import (
	"context"
	"sort"

	"goexact/domain/contingency"
	"goexact/internal/errors"
)

// DefaultScanFloor stops a scan once Fisher's p-value reaches it.
const DefaultScanFloor = 1e-10

// ScanOptions configure ScanCells.
type ScanOptions struct {
	// Floor ends the walk in each direction at the first a whose Fisher
	// p-value is <= Floor. Zero means DefaultScanFloor.
	Floor float64
	// Fisher selects the Fisher variant; empty means point probability.
	Fisher FisherVariant
	// Grid, if non-empty, adds grid-maximised Barnard p-values.
	Grid NuisanceGrid
	GridOptions
}

// ScanRow compares Fisher and Barnard for one cell count.
type ScanRow struct {
	A          int     `json:"a"`
	Fisher     float64 `json:"fisher"`
	Barnard    float64 `json:"barnard"`     // at pi = x/n
	Ratio      float64 `json:"ratio"`       // Fisher / Barnard
	BarnardMax float64 `json:"barnard_max"` // over Grid, when given
	MaxPi      float64 `json:"max_pi"`
}

// ScanCells walks the cell count a outward from x*n1/n, first upwards then
// downwards, and stops in each direction at the feasible boundary or once
// Fisher's p-value falls to the floor. Every retained a gets Fisher's
// p-value and Barnard's p-value at the maximum-likelihood pi = x/n, the latter
// answered from one shared PrecomputedDistribution. Rows come back ordered by a.
func ScanCells(ctx context.Context, m contingency.TableMargins, x int, opts ScanOptions) ([]ScanRow, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if x <= 0 || x >= m.N {
		return nil, errors.DomainError("scan needs 0 < x < n so that pi = x/n lies in (0,1); got x=%d n=%d", x, m.N)
	}
	floor := opts.Floor
	if floor <= 0 {
		floor = DefaultScanFloor
	}
	variant := opts.Fisher
	if variant == "" {
		variant = FisherPointProbabilityVariant
	}

	pi := float64(x) / float64(m.N)
	dist, err := NewPrecomputedDistribution(m, pi)
	if err != nil {
		return nil, err
	}

	lo, hi := m.FeasibleRange(x)
	mid := int(float64(x) * float64(m.N1) / float64(m.N))
	mid = min(max(mid, lo), hi)

	var rows []ScanRow
	visit := func(a int) (bool, error) {
		c := contingency.Cell{X: x, A: a}
		fisher, err := Fisher(variant, m, c)
		if err != nil {
			return false, err
		}
		if fisher <= floor {
			return false, nil
		}
		barnard, err := dist.PValue(c)
		if err != nil {
			return false, err
		}
		row := ScanRow{A: a, Fisher: fisher, Barnard: barnard}
		if barnard > 0 {
			row.Ratio = fisher / barnard
		}
		rows = append(rows, row)
		return true, nil
	}

	for a := mid; a <= hi; a++ {
		more, err := visit(a)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	for a := mid - 1; a >= lo; a-- {
		more, err := visit(a)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].A < rows[j].A })

	if len(opts.Grid) == 0 || len(rows) == 0 {
		return rows, nil
	}

	cells := make([]contingency.Cell, len(rows))
	for i, r := range rows {
		cells[i] = contingency.Cell{X: x, A: r.A}
	}
	maxima, _, err := MaximizeCells(ctx, m, cells, opts.Grid, opts.GridOptions)
	if err != nil {
		return nil, errors.Wrap(err, "scan grid maximisation")
	}
	for i := range rows {
		rows[i].BarnardMax = maxima[i].PValue
		rows[i].MaxPi = maxima[i].Pi
	}
	return rows, nil
}
