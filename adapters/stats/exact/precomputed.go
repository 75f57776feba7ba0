package exact

import (
	"math"
	"sort"

	"goexact/domain/contingency"

	"gonum.org/v1/gonum/floats"
)

// PrecomputedDistribution is the sorted probability population of every
// feasible table for one (n, n1, pi). Building costs O(T log T) for T tables;
// each PValue query afterwards is a binary search.
//
// A distribution is immutable once built and may be queried from many
// goroutines. It answers only for the (n, n1, pi) it was built with; any
// change to those three needs a new build.
type PrecomputedDistribution struct {
	margins contingency.TableMargins
	model   *jointModel

	probs    []float64 // ascending
	logProbs []float64 // ascending, logProbs[i] = log(probs[i])
	cumLog   []float64 // cumLog[i] = log(sum of probs[0..i])
}

// NewPrecomputedDistribution enumerates and sorts the table population.
func NewPrecomputedDistribution(m contingency.TableMargins, pi float64) (*PrecomputedDistribution, error) {
	jm, err := newJointModel(m, pi)
	if err != nil {
		return nil, err
	}

	logProbs := make([]float64, 0, m.PopulationSize())
	jm.each(func(_, _ int, logp float64) {
		logProbs = append(logProbs, logp)
	})
	sort.Float64s(logProbs)

	probs := make([]float64, len(logProbs))
	cumLog := make([]float64, len(logProbs))
	acc := math.Inf(-1)
	for i, lp := range logProbs {
		probs[i] = math.Exp(lp)
		acc = LogSumExp(acc, lp)
		cumLog[i] = acc
	}

	return &PrecomputedDistribution{
		margins:  m,
		model:    jm,
		probs:    probs,
		logProbs: logProbs,
		cumLog:   cumLog,
	}, nil
}

// Margins returns the margins the distribution was built for.
func (d *PrecomputedDistribution) Margins() contingency.TableMargins {
	return d.margins
}

// Pi returns the nuisance value the distribution was built for.
func (d *PrecomputedDistribution) Pi() float64 {
	return d.model.pi
}

// Matches reports whether the distribution can answer queries for (m, pi).
func (d *PrecomputedDistribution) Matches(m contingency.TableMargins, pi float64) bool {
	return d.margins == m && d.model.pi == pi
}

// Len is the population size T.
func (d *PrecomputedDistribution) Len() int {
	return len(d.logProbs)
}

// Probabilities returns the ascending linear-domain probabilities. The slice
// is shared; callers must not modify it.
func (d *PrecomputedDistribution) Probabilities() []float64 {
	return d.probs
}

// LogProbabilities returns the ascending log probabilities. The slice is
// shared; callers must not modify it.
func (d *PrecomputedDistribution) LogProbabilities() []float64 {
	return d.logProbs
}

// TotalLogMass is the log of the summed population probability; zero up to
// rounding.
func (d *PrecomputedDistribution) TotalLogMass() float64 {
	return floats.LogSumExp(d.logProbs)
}

// LogPValue returns the log of the summed probability of every table no more
// probable than c, capped at 0.
func (d *PrecomputedDistribution) LogPValue(c contingency.Cell) (float64, error) {
	if err := d.margins.ValidateCell(c); err != nil {
		return 0, err
	}
	p0 := d.model.logProb(c.X, c.A)
	// The observed table is in the population, so idx >= 1.
	idx := sort.Search(len(d.logProbs), func(i int) bool { return d.logProbs[i] > p0 })
	if idx == 0 {
		return math.Inf(-1), nil
	}
	return math.Min(d.cumLog[idx-1], 0), nil
}

// PValue is the threshold-sum query; it equals BarnardAtPi(m, c, pi) up to
// floating-point rounding.
func (d *PrecomputedDistribution) PValue(c contingency.Cell) (float64, error) {
	logp, err := d.LogPValue(c)
	if err != nil {
		return 0, err
	}
	return math.Min(math.Exp(logp), 1), nil
}
