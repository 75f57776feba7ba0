package exact

import (
	"math"

	"goexact/domain/contingency"
)

// BarnardAtPi returns the unconditional exact p-value of the observed cell at
// one fixed nuisance value: the total probability, under the independence
// model with common success rate pi, of every table sharing the row margins
// whose probability does not exceed the observed table's. The result is
// clamped to 1; rounding in the accumulated mass can otherwise overshoot it
// when the observed table is the most probable one.
//
// Barnard's test proper takes the supremum of this quantity over pi in (0,1);
// see Maximize.
func BarnardAtPi(m contingency.TableMargins, c contingency.Cell, pi float64) (float64, error) {
	logp, err := BarnardLogPValue(m, c, pi)
	if err != nil {
		return 0, err
	}
	return math.Min(math.Exp(logp), 1), nil
}

// BarnardLogPValue is BarnardAtPi in the log domain, capped at 0. It
// enumerates the whole population of (n+1)-column tables and folds every
// qualifying table into a LogSumExp accumulator.
func BarnardLogPValue(m contingency.TableMargins, c contingency.Cell, pi float64) (float64, error) {
	jm, err := newJointModel(m, pi)
	if err != nil {
		return 0, err
	}
	if err := m.ValidateCell(c); err != nil {
		return 0, err
	}

	p0 := jm.logProb(c.X, c.A)
	acc := math.Inf(-1)
	jm.each(func(_, _ int, logp float64) {
		if logp <= p0 {
			acc = LogSumExp(acc, logp)
		}
	})
	return math.Min(acc, 0), nil
}
