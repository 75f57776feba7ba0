package transactions

import (
	"testing"

	"goexact/domain/contingency"
	"goexact/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustItemset(t *testing.T, items ...int) Itemset {
	t.Helper()
	s, err := NewItemset(items)
	require.NoError(t, err)
	return s
}

func sampleDatabase(t *testing.T) *LabelledDatabase {
	rows := []Itemset{
		mustItemset(t, 1, 2, 3),
		mustItemset(t, 2, 3),
		mustItemset(t, 1, 3, 7),
		mustItemset(t, 3),
		mustItemset(t),
		mustItemset(t, 1, 2, 3, 7),
	}
	ld, err := NewLabelledDatabase(NewDatabase(rows), Labels{1, 0, 1, 1, 0, 0})
	require.NoError(t, err)
	return ld
}

func TestNewItemset(t *testing.T) {
	s, err := NewItemset([]int{7, 3, 12})
	require.NoError(t, err)
	assert.Equal(t, Itemset{3, 7, 12}, s)

	_, err = NewItemset([]int{3, 7, 3})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = NewItemset([]int{0, 1})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestCovering(t *testing.T) {
	ld := sampleDatabase(t)

	assert.Equal(t, []int{0, 2, 5}, ld.DB.Covering(Itemset{1, 3}))
	assert.Equal(t, []int{0, 1, 5}, ld.DB.Covering(Itemset{2}))
	assert.Equal(t, []int{2, 5}, ld.DB.Covering(Itemset{1, 7}))
	assert.Empty(t, ld.DB.Covering(Itemset{99}))
	assert.Len(t, ld.DB.Covering(nil), 6)
}

func TestCellCounts(t *testing.T) {
	ld := sampleDatabase(t)

	assert.Equal(t, contingency.TableMargins{N: 6, N1: 3}, ld.Margins())
	assert.Equal(t, contingency.Cell{X: 5, A: 3}, ld.Cell(Itemset{3}))
	assert.Equal(t, contingency.Cell{X: 3, A: 2}, ld.Cell(Itemset{1, 3}))
	assert.Equal(t, contingency.Cell{X: 0, A: 0}, ld.Cell(Itemset{4}))
}

func TestLabelledDatabaseRejectsMisalignment(t *testing.T) {
	db := NewDatabase([]Itemset{{1}, {2}})

	_, err := NewLabelledDatabase(db, Labels{1})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))

	_, err = NewLabelledDatabase(NewDatabase(nil), Labels{})
	assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))
}
