package exact

import (
	"testing"

	"goexact/domain/contingency"
	"goexact/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFisherReferenceValues(t *testing.T) {
	// Reference values from exact rational hypergeometric sums.
	tests := []struct {
		name            string
		n, n1, x, a     int
		minTail, pointP float64
	}{
		{"symmetric", 20, 10, 8, 5, 0.3249583234103358, 0.6499166468206716},
		{"symmetric_low", 20, 10, 8, 2, 0.0849011669445106, 0.1698023338890212},
		{"asymmetric_tail", 20, 6, 8, 0, 0.023839009287925695, 0.041898864809081525},
		{"asymmetric_agree", 20, 6, 8, 5, 0.018059855521155833, 0.018059855521155833},
		{"uneven_rows", 30, 7, 12, 6, 0.008558797524314767, 0.008558797524314767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := contingency.TableMargins{N: tt.n, N1: tt.n1}
			c := contingency.Cell{X: tt.x, A: tt.a}

			minTail, err := FisherMinTail(m, c)
			require.NoError(t, err)
			assert.InDelta(t, tt.minTail, minTail, 1e-12)

			pointP, err := FisherPointProbability(m, c)
			require.NoError(t, err)
			assert.InDelta(t, tt.pointP, pointP, 1e-12)
		})
	}
}

func TestFisherDegenerateMarginsIsExactlyOne(t *testing.T) {
	m := contingency.TableMargins{N: 15, N1: 6}

	for a := 0; a <= m.N1; a++ {
		for _, variant := range []FisherVariant{FisherMinTailVariant, FisherPointProbabilityVariant} {
			p, err := Fisher(variant, m, contingency.Cell{X: 0, A: a})
			require.NoError(t, err)
			assert.Equal(t, 1.0, p, "x=0 a=%d %s", a, variant)

			p, err = Fisher(variant, m, contingency.Cell{X: m.N, A: a})
			require.NoError(t, err)
			assert.Equal(t, 1.0, p, "x=N a=%d %s", a, variant)
		}
	}
}

func TestFisherBounds(t *testing.T) {
	m := contingency.TableMargins{N: 25, N1: 9}
	for x := 1; x < m.N; x++ {
		lo, hi := m.FeasibleRange(x)
		for a := lo; a <= hi; a++ {
			c := contingency.Cell{X: x, A: a}
			minTail, err := FisherMinTail(m, c)
			require.NoError(t, err)
			pointP, err := FisherPointProbability(m, c)
			require.NoError(t, err)

			assert.True(t, minTail > 0 && minTail <= 1, "min tail x=%d a=%d: %g", x, a, minTail)
			assert.True(t, pointP > 0 && pointP <= 1, "point x=%d a=%d: %g", x, a, pointP)
		}
	}
}

func TestFisherRejectsInfeasibleCell(t *testing.T) {
	m := contingency.TableMargins{N: 20, N1: 10}

	p, err := FisherMinTail(m, contingency.Cell{X: 8, A: 9})
	assert.True(t, errors.HasCode(err, errors.CodeInfeasibleTable))
	assert.Zero(t, p)

	p, err = FisherPointProbability(m, contingency.Cell{X: 21, A: 0})
	assert.True(t, errors.HasCode(err, errors.CodeInfeasibleTable))
	assert.Zero(t, p)

	p, err = FisherMinTail(contingency.TableMargins{N: 5, N1: 6}, contingency.Cell{X: 2, A: 1})
	assert.Error(t, err)
	assert.Zero(t, p)
}

func TestHypergeometricPMFSumsToOne(t *testing.T) {
	m := contingency.TableMargins{N: 20, N1: 10}
	pmf, err := HypergeometricPMF(m, 8)
	require.NoError(t, err)
	require.Len(t, pmf, 21)

	sum := 0.0
	for _, p := range pmf {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Zero(t, pmf[9])
}

func TestParseFisherVariant(t *testing.T) {
	v, err := ParseFisherVariant("min_tail")
	require.NoError(t, err)
	assert.Equal(t, FisherMinTailVariant, v)

	_, err = ParseFisherVariant("two_sided")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}
