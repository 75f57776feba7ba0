package app

import (
	"context"
	"math"

	"goexact/adapters/itemsets"
	"goexact/adapters/stats/exact"
	"goexact/domain/transactions"
	"goexact/internal/errors"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ComparisonService recomputes previously reported significant patterns and
// measures how far the reported values are from the recomputed ones.
type ComparisonService struct {
	exact     *ExactService
	tolerance float64
	workers   int
	logger    *zap.Logger
}

// NewComparisonService creates a comparison service; discrepancies above
// tolerance fail the comparison.
func NewComparisonService(exactService *ExactService, tolerance float64, workers int, logger *zap.Logger) *ComparisonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &ComparisonService{exact: exactService, tolerance: tolerance, workers: workers, logger: logger}
}

// ComparisonInput pairs the reported patterns with the population they were
// mined from. Itemsets and Reported are aligned by position.
type ComparisonInput struct {
	Database *transactions.LabelledDatabase
	Itemsets []itemsets.SignificantItemset
	Reported []itemsets.ReportedPValue
}

// PatternCheck is the comparison of one reported pattern.
type PatternCheck struct {
	Index       int                     `json:"index"`
	Items       transactions.Itemset    `json:"items"`
	Frequency   int                     `json:"frequency"`
	Reported    itemsets.ReportedPValue `json:"reported"`
	A           int                     `json:"a"`
	X           int                     `json:"x"`
	PValue      float64                 `json:"p_value"`
	Discrepancy Discrepancy             `json:"discrepancy"`
	Agrees      bool                    `json:"agrees"`
}

// Discrepancy holds absolute differences between reported and recomputed
// values, one per checked column.
type Discrepancy struct {
	A         float64 `json:"a"`
	X         float64 `json:"x"`
	PValue    float64 `json:"p_value"`
	Frequency float64 `json:"frequency"`
}

func (d Discrepancy) largest() float64 {
	return math.Max(math.Max(d.A, d.X), math.Max(d.PValue, d.Frequency))
}

// ComparisonReport summarises a comparison. Passed is false when any column's
// maximum discrepancy exceeds Tolerance; it is a diagnostic, not an error.
type ComparisonReport struct {
	Checks         []PatternCheck `json:"checks"`
	MaxDiscrepancy Discrepancy    `json:"max_discrepancy"`
	MeanPValueDiff float64        `json:"mean_p_value_diff"`
	Tolerance      float64        `json:"tolerance"`
	Disagreements  int            `json:"disagreements"`
	Passed         bool           `json:"passed"`
}

// Compare recomputes (a, x, p) for every reported pattern with Fisher's
// min-tail test and compares them with the reported (a, x, p) rows and the
// reported frequencies. Mismatched list lengths are malformed input.
func (s *ComparisonService) Compare(ctx context.Context, in ComparisonInput) (*ComparisonReport, error) {
	if in.Database == nil {
		return nil, errors.InvalidInput("comparison needs a labelled transaction population")
	}
	if len(in.Itemsets) != len(in.Reported) {
		return nil, errors.Newf(errors.CodeMalformedInput,
			"%d significant itemsets but %d reported p-value rows", len(in.Itemsets), len(in.Reported))
	}

	checks := make([]PatternCheck, len(in.Itemsets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range in.Itemsets {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			check, err := s.check(in.Database, i, in.Itemsets[i], in.Reported[i])
			if err != nil {
				return err
			}
			checks[i] = check
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "comparison interrupted")
	}

	report := &ComparisonReport{Checks: checks, Tolerance: s.tolerance}
	if len(checks) > 0 {
		if err := s.summarise(report); err != nil {
			return nil, err
		}
	}
	report.Passed = report.MaxDiscrepancy.largest() <= s.tolerance

	for _, c := range checks {
		if !c.Agrees {
			s.logger.Warn("reported pattern disagrees",
				zap.Int("index", c.Index),
				zap.Ints("items", c.Items),
				zap.Int("a", c.A), zap.Int("reported_a", c.Reported.A),
				zap.Int("x", c.X), zap.Int("reported_x", c.Reported.X),
				zap.Float64("p_value", c.PValue), zap.Float64("reported_p_value", c.Reported.PValue))
		}
	}
	s.logger.Info("comparison complete",
		zap.Int("patterns", len(checks)),
		zap.Int("disagreements", report.Disagreements),
		zap.Float64("max_a_diff", report.MaxDiscrepancy.A),
		zap.Float64("max_x_diff", report.MaxDiscrepancy.X),
		zap.Float64("max_p_value_diff", report.MaxDiscrepancy.PValue),
		zap.Bool("passed", report.Passed))
	return report, nil
}

func (s *ComparisonService) check(ld *transactions.LabelledDatabase, i int, set itemsets.SignificantItemset, reported itemsets.ReportedPValue) (PatternCheck, error) {
	eval, err := s.exact.EvaluateItemset(ld, set.Items, exact.FisherMinTailVariant)
	if err != nil {
		return PatternCheck{}, errors.Wrapf(err, "pattern %d", i+1)
	}
	d := Discrepancy{
		A:         math.Abs(float64(eval.A - reported.A)),
		X:         math.Abs(float64(eval.X - reported.X)),
		PValue:    math.Abs(eval.PValue - reported.PValue),
		Frequency: math.Abs(float64(eval.X - set.Frequency)),
	}
	return PatternCheck{
		Index:       i,
		Items:       set.Items,
		Frequency:   set.Frequency,
		Reported:    reported,
		A:           eval.A,
		X:           eval.X,
		PValue:      eval.PValue,
		Discrepancy: d,
		Agrees:      d.largest() <= s.tolerance,
	}, nil
}

func (s *ComparisonService) summarise(report *ComparisonReport) error {
	columns := map[string]stats.Float64Data{}
	for _, c := range report.Checks {
		columns["a"] = append(columns["a"], c.Discrepancy.A)
		columns["x"] = append(columns["x"], c.Discrepancy.X)
		columns["p"] = append(columns["p"], c.Discrepancy.PValue)
		columns["f"] = append(columns["f"], c.Discrepancy.Frequency)
		if !c.Agrees {
			report.Disagreements++
		}
	}

	var err error
	colMax := func(col string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = columns[col].Max()
		return v
	}
	report.MaxDiscrepancy = Discrepancy{A: colMax("a"), X: colMax("x"), PValue: colMax("p"), Frequency: colMax("f")}
	if err == nil {
		report.MeanPValueDiff, err = columns["p"].Mean()
	}
	if err != nil {
		return errors.Wrap(err, "summarise discrepancies")
	}
	return nil
}
