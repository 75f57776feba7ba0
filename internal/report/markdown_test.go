package report

import (
	"strings"
	"testing"

	"goexact/adapters/itemsets"
	"goexact/adapters/stats/exact"
	"goexact/app"
	"goexact/domain/contingency"
	"goexact/domain/transactions"

	"github.com/stretchr/testify/assert"
)

func TestComparisonMarkdown(t *testing.T) {
	r := &app.ComparisonReport{
		Tolerance:      1e-9,
		Disagreements:  1,
		MaxDiscrepancy: app.Discrepancy{PValue: 0.01},
		Checks: []app.PatternCheck{
			{Index: 0, Items: transactions.Itemset{1}, A: 5, X: 8, Frequency: 8, Agrees: true},
			{
				Index: 1, Items: transactions.Itemset{3, 7}, A: 6, X: 6, Frequency: 6,
				PValue:   0.005417956656346749,
				Reported: itemsets.ReportedPValue{A: 6, X: 6, PValue: 0.015417956656346749},
			},
		},
	}

	md := string(ComparisonMarkdown(r))
	assert.Contains(t, md, "# Reported pattern comparison: FAILED")
	assert.Contains(t, md, "2 patterns checked, 1 disagree")
	assert.Contains(t, md, "| p-value | 0.01 |")
	assert.Contains(t, md, "| 2 | {3 7} | 6 | 6 | 6 | 6 | 6 | 0.00541796 | 0.015418 |")
	assert.NotContains(t, md, "| 1 | {1} |")

	r.Passed, r.Disagreements = true, 0
	md = string(ComparisonMarkdown(r))
	assert.Contains(t, md, "PASSED")
	assert.NotContains(t, md, "Disagreeing patterns")
}

func TestScanHTML(t *testing.T) {
	rows := []exact.ScanRow{{A: 5, Fisher: 0.64, Barnard: 0.68, Ratio: 0.94}}
	md := ScanMarkdown(contingency.TableMargins{N: 20, N1: 10}, 8, rows)
	assert.Contains(t, string(md), "# Cell scan (n=20 n1=10 n0=10, x=8)")

	page := string(HTML("scan", md))
	assert.True(t, strings.Contains(page, "<html"))
	assert.Contains(t, page, "scan</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<td>0.68</td>")
}
