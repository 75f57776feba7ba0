package exact

import (
	"math"

	"goexact/domain/contingency"
	"goexact/internal/errors"

	"gonum.org/v1/gonum/floats"
)

// FisherVariant names one of the two two-sided Fisher p-value definitions.
// They coincide for symmetric hypergeometric distributions and diverge
// otherwise; neither is the default.
type FisherVariant string

const (
	// FisherMinTailVariant is min(P(A <= a), P(A >= a)).
	FisherMinTailVariant FisherVariant = "min_tail"
	// FisherPointProbabilityVariant sums the mass of every table no more
	// probable than the observed one.
	FisherPointProbabilityVariant FisherVariant = "point_probability"
)

// relTieTolerance treats pmf values within this relative distance of the
// observed pmf as ties.
const relTieTolerance = 1e-7

// ParseFisherVariant maps a user-supplied name onto a variant.
func ParseFisherVariant(name string) (FisherVariant, error) {
	switch FisherVariant(name) {
	case FisherMinTailVariant, FisherPointProbabilityVariant:
		return FisherVariant(name), nil
	}
	return "", errors.InvalidInput("unknown Fisher variant " + name + " (want min_tail or point_probability)")
}

// Fisher dispatches to the named variant.
func Fisher(variant FisherVariant, m contingency.TableMargins, c contingency.Cell) (float64, error) {
	switch variant {
	case FisherMinTailVariant:
		return FisherMinTail(m, c)
	case FisherPointProbabilityVariant:
		return FisherPointProbability(m, c)
	}
	return 0, errors.InvalidInput("unknown Fisher variant " + string(variant))
}

// FisherMinTail returns the smaller of the two hypergeometric tails at a,
// clamped to 1. A column margin of 0 or N carries no information and yields
// exactly 1 whatever a is.
func FisherMinTail(m contingency.TableMargins, c contingency.Cell) (float64, error) {
	pmf, lo, degenerate, err := hypergeometricLogPMF(m, c)
	if err != nil {
		return 0, err
	}
	if degenerate {
		return 1, nil
	}
	i := c.A - lo
	left := math.Exp(floats.LogSumExp(pmf[:i+1]))
	right := math.Exp(floats.LogSumExp(pmf[i:]))
	return math.Min(math.Min(left, right), 1), nil
}

// FisherPointProbability returns the total hypergeometric mass of outcomes
// whose pmf does not exceed the observed pmf, clamped to 1. Degenerate margins
// yield exactly 1.
func FisherPointProbability(m contingency.TableMargins, c contingency.Cell) (float64, error) {
	pmf, lo, degenerate, err := hypergeometricLogPMF(m, c)
	if err != nil {
		return 0, err
	}
	if degenerate {
		return 1, nil
	}
	threshold := pmf[c.A-lo] + math.Log1p(relTieTolerance)
	tail := math.Inf(-1)
	for _, lp := range pmf {
		if lp <= threshold {
			tail = LogSumExp(tail, lp)
		}
	}
	return math.Min(math.Exp(tail), 1), nil
}

// HypergeometricPMF returns P(A = k) for k in [0, N] given the margins and x.
// Entries outside the feasible range are zero.
func HypergeometricPMF(m contingency.TableMargins, x int) ([]float64, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if x < 0 || x > m.N {
		return nil, errors.InfeasibleTable("margin x=%d outside [0, %d]", x, m.N)
	}
	lo, hi := m.FeasibleRange(x)
	logPMF := hypergeometricSupport(m, x, lo, hi)
	out := make([]float64, m.N+1)
	for k := lo; k <= hi; k++ {
		out[k] = math.Exp(logPMF[k-lo])
	}
	return out, nil
}

// hypergeometricLogPMF validates the inputs and returns the log pmf over the
// feasible range of a, together with the range's lower bound. The degenerate
// flag is set for x = 0 or x = N, in which case a is not checked.
func hypergeometricLogPMF(m contingency.TableMargins, c contingency.Cell) ([]float64, int, bool, error) {
	if err := m.Validate(); err != nil {
		return nil, 0, false, err
	}
	if c.X < 0 || c.X > m.N {
		return nil, 0, false, errors.InfeasibleTable("margin x=%d outside [0, %d]", c.X, m.N)
	}
	if c.X == 0 || c.X == m.N {
		return nil, 0, true, nil
	}
	if err := m.ValidateCell(c); err != nil {
		return nil, 0, false, err
	}
	lo, hi := m.FeasibleRange(c.X)
	return hypergeometricSupport(m, c.X, lo, hi), lo, false, nil
}

func hypergeometricSupport(m contingency.TableMargins, x, lo, hi int) []float64 {
	lbTotal, _ := LogBinomialCoefficient(m.N, x)
	pmf := make([]float64, hi-lo+1)
	for k := lo; k <= hi; k++ {
		lb1, _ := LogBinomialCoefficient(m.N1, k)
		lb0, _ := LogBinomialCoefficient(m.N0(), x-k)
		pmf[k-lo] = lb1 + lb0 - lbTotal
	}
	return pmf
}
