package itemsets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"goexact/domain/transactions"
	"goexact/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSignificantItemsets(t *testing.T) {
	input := "3 7 12 (42)\n\n1 (5)\n"
	got, err := ReadSignificantItemsets(strings.NewReader(input), "itemsets.dat")
	require.NoError(t, err)

	assert.Equal(t, []SignificantItemset{
		{Items: transactions.Itemset{3, 7, 12}, Frequency: 42},
		{Items: transactions.Itemset{1}, Frequency: 5},
	}, got)
}

func TestReadSignificantItemsetsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  string
	}{
		{"missing_frequency", "3 7 12\n", "itemsets.dat:1:"},
		{"bad_frequency", "1 (2)\n3 (x)\n", "itemsets.dat:2:"},
		{"bad_item", "3 a (4)\n", "itemsets.dat:1:"},
		{"duplicate_item", "3 3 (4)\n", "itemsets.dat:1:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSignificantItemsets(strings.NewReader(tt.input), "itemsets.dat")
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestReadReportedPValues(t *testing.T) {
	input := "a,x,pvalue\n5,8,3.249583e-01\n2.0, 8, 0.0849\n"
	got, err := ReadReportedPValues(strings.NewReader(input), "pvalues.dat")
	require.NoError(t, err)

	assert.Equal(t, []ReportedPValue{
		{A: 5, X: 8, PValue: 3.249583e-01},
		{A: 2, X: 8, PValue: 0.0849},
	}, got)
}

func TestReadReportedPValuesMalformed(t *testing.T) {
	for _, input := range []string{
		"a,x,p\n5,8\n",
		"a,x,p\n5.5,8,0.1\n",
		"a,x,p\n5,8,1.5\n",
	} {
		_, err := ReadReportedPValues(strings.NewReader(input), "pvalues.dat")
		require.Error(t, err, input)
		assert.True(t, errors.HasCode(err, errors.CodeMalformedInput), input)
		assert.Contains(t, err.Error(), "pvalues.dat:2:")
	}
}

func TestReadTransactionsRejectsDuplicateItem(t *testing.T) {
	input := "1 2 3\n4 5\n7 8 7\n"
	_, err := ReadTransactions(strings.NewReader(input), "mushroom.dat")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))
	assert.Contains(t, err.Error(), "mushroom.dat:3:")
	assert.Contains(t, err.Error(), "duplicate item 7")
}

func TestReadTransactionsKeepsBlankRecords(t *testing.T) {
	db, err := ReadTransactions(strings.NewReader("3 1\n\n2\n"), "t.dat")
	require.NoError(t, err)
	require.Equal(t, 3, db.Len())
	assert.Equal(t, transactions.Itemset{1, 3}, db.Transaction(0))
	assert.Empty(t, db.Transaction(1))
}

func TestReadTransactionsRejectsNonPositiveItem(t *testing.T) {
	_, err := ReadTransactions(strings.NewReader("1 0\n"), "t.dat")
	assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))
}

func TestReadLabels(t *testing.T) {
	labels, err := ReadLabels(strings.NewReader("1\n0\n\n1.0\n"), "labels.dat")
	require.NoError(t, err)
	assert.Equal(t, transactions.Labels{1, 0, 1}, labels)

	_, err = ReadLabels(strings.NewReader("1\nyes\n"), "labels.dat")
	assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))
	assert.Contains(t, err.Error(), "labels.dat:2:")
}

func TestLoadLabelledDatabaseMismatchedCounts(t *testing.T) {
	dir := t.TempDir()
	tx := filepath.Join(dir, "tx.dat")
	lb := filepath.Join(dir, "labels.dat")
	require.NoError(t, os.WriteFile(tx, []byte("1 2\n2 3\n3\n"), 0o644))
	require.NoError(t, os.WriteFile(lb, []byte("1\n0\n"), 0o644))

	_, err := LoadLabelledDatabase(tx, lb)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMalformedInput))

	require.NoError(t, os.WriteFile(lb, []byte("1\n0\n1\n"), 0o644))
	ld, err := LoadLabelledDatabase(tx, lb)
	require.NoError(t, err)
	assert.Equal(t, 3, ld.DB.Len())
	assert.Equal(t, 2, ld.Labels.PositiveCount())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadSignificantItemsets(filepath.Join(t.TempDir(), "absent.dat"))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}
