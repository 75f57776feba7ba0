package contingency

import (
	"testing"

	"goexact/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeasibleRange(t *testing.T) {
	m := TableMargins{N: 20, N1: 10}

	tests := []struct {
		x      int
		lo, hi int
	}{
		{0, 0, 0},
		{8, 0, 8},
		{10, 0, 10},
		{15, 5, 10},
		{20, 10, 10},
	}

	for _, tt := range tests {
		lo, hi := m.FeasibleRange(tt.x)
		assert.Equal(t, tt.lo, lo, "lo for x=%d", tt.x)
		assert.Equal(t, tt.hi, hi, "hi for x=%d", tt.x)
	}
}

func TestPopulationSizeMatchesEnumeration(t *testing.T) {
	m := TableMargins{N: 13, N1: 4}

	count := 0
	for x := 0; x <= m.N; x++ {
		lo, hi := m.FeasibleRange(x)
		count += hi - lo + 1
	}
	assert.Equal(t, count, m.PopulationSize())
}

func TestCellRejectsInfeasible(t *testing.T) {
	m := TableMargins{N: 20, N1: 10}

	_, err := m.Cell(15, 4)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInfeasibleTable))

	_, err = m.Cell(21, 10)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInfeasibleTable))

	c, err := m.Cell(15, 5)
	require.NoError(t, err)
	assert.Equal(t, Cell{X: 15, A: 5}, c)
}

func TestNewMarginsValidation(t *testing.T) {
	_, err := NewMargins(0, 0)
	assert.True(t, errors.HasCode(err, errors.CodeDomainError))

	_, err = NewMargins(10, 11)
	assert.True(t, errors.HasCode(err, errors.CodeDomainError))

	m, err := NewMargins(15, 6)
	require.NoError(t, err)
	assert.Equal(t, 9, m.N0())
}

func TestTableCounts(t *testing.T) {
	tbl, err := NewTable(20, 10, 8, 5)
	require.NoError(t, err)

	a, b, c, d := tbl.Counts()
	assert.Equal(t, []int{5, 5, 3, 7}, []int{a, b, c, d})
	assert.Equal(t, 20, a+b+c+d)
	assert.False(t, tbl.Degenerate())
	assert.InDelta(t, 0.4, tbl.MLE(), 1e-15)
}
