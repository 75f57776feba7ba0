// Package exact computes exact p-values for 2x2 contingency tables.
//
// Everything is evaluated in the log domain and moved to the linear domain only
// when a final p-value is returned. Tail sums are accumulated with LogSumExp so
// that tables with probabilities far below the float64 underflow threshold
// still contribute their mass.
package exact

import (
	"math"

	"goexact/domain/contingency"
	"goexact/internal/errors"

	"gonum.org/v1/gonum/stat/combin"
)

// LogBinomialCoefficient returns lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1).
// It is defined for 0 <= k <= n only.
func LogBinomialCoefficient(n, k int) (float64, error) {
	if n < 0 || k < 0 || k > n {
		return 0, errors.DomainError("binomial coefficient (%d choose %d) requires 0 <= k <= n", n, k)
	}
	return combin.LogGeneralizedBinomial(float64(n), float64(k)), nil
}

// LogJointProbability is the log-likelihood of the table (x, a) under the
// independence model a ~ Bin(n1, pi), x-a ~ Bin(n0, pi):
//
//	log C(n0, x-a) + log C(n1, a) + x log(pi) + (n-x) log(1-pi)
func LogJointProbability(m contingency.TableMargins, c contingency.Cell, pi float64) (float64, error) {
	if err := validatePi(pi); err != nil {
		return 0, err
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if err := m.ValidateCell(c); err != nil {
		return 0, err
	}
	lb0, _ := LogBinomialCoefficient(m.N0(), c.X-c.A)
	lb1, _ := LogBinomialCoefficient(m.N1, c.A)
	return lb0 + lb1 + float64(c.X)*math.Log(pi) + float64(m.N-c.X)*math.Log(1-pi), nil
}

// LogSumExp returns log(exp(p) + exp(q)) without leaving the log domain.
// Negative infinity is the additive identity.
func LogSumExp(p, q float64) float64 {
	if math.IsInf(p, -1) {
		return q
	}
	if math.IsInf(q, -1) {
		return p
	}
	hi, lo := p, q
	if lo > hi {
		hi, lo = lo, hi
	}
	return hi + math.Log1p(math.Exp(lo-hi))
}

func validatePi(pi float64) error {
	if math.IsNaN(pi) || pi <= 0 || pi >= 1 {
		return errors.DomainError("nuisance parameter pi=%g must lie in the open interval (0,1)", pi)
	}
	return nil
}

// jointModel caches the per-row log binomial coefficients and log(pi),
// log(1-pi) for one (n, n1, pi). logProb performs the same operations in the
// same order as LogJointProbability, so both agree bit for bit.
type jointModel struct {
	margins  contingency.TableMargins
	pi       float64
	lbPos    []float64 // lbPos[a] = log C(n1, a)
	lbNeg    []float64 // lbNeg[b] = log C(n0, b)
	logPi    float64
	logNotPi float64
}

func newJointModel(m contingency.TableMargins, pi float64) (*jointModel, error) {
	if err := validatePi(pi); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	jm := &jointModel{
		margins:  m,
		pi:       pi,
		lbPos:    logBinomialRow(m.N1),
		lbNeg:    logBinomialRow(m.N0()),
		logPi:    math.Log(pi),
		logNotPi: math.Log(1 - pi),
	}
	return jm, nil
}

func logBinomialRow(n int) []float64 {
	row := make([]float64, n+1)
	for k := range row {
		row[k] = combin.LogGeneralizedBinomial(float64(n), float64(k))
	}
	return row
}

func (jm *jointModel) logProb(x, a int) float64 {
	return jm.lbNeg[x-a] + jm.lbPos[a] + float64(x)*jm.logPi + float64(jm.margins.N-x)*jm.logNotPi
}

// each calls fn for every feasible (x, a) with x in [0, n].
func (jm *jointModel) each(fn func(x, a int, logp float64)) {
	m := jm.margins
	for x := 0; x <= m.N; x++ {
		lo, hi := m.FeasibleRange(x)
		for a := lo; a <= hi; a++ {
			fn(x, a, jm.logProb(x, a))
		}
	}
}
