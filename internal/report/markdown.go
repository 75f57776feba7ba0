// Package report renders comparison and scan results as Markdown and HTML.
package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"goexact/adapters/stats/exact"
	"goexact/app"
	"goexact/domain/contingency"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ComparisonMarkdown renders a comparison report: a verdict, the maximum
// discrepancy per column and a table of the disagreeing patterns.
func ComparisonMarkdown(r *app.ComparisonReport) []byte {
	var b bytes.Buffer
	verdict := "PASSED"
	if !r.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(&b, "# Reported pattern comparison: %s\n\n", verdict)
	fmt.Fprintf(&b, "%d patterns checked, %d disagree at tolerance %s.\n\n",
		len(r.Checks), r.Disagreements, formatFloat(r.Tolerance))

	b.WriteString("| column | max abs discrepancy |\n|---|---|\n")
	fmt.Fprintf(&b, "| a | %s |\n", formatFloat(r.MaxDiscrepancy.A))
	fmt.Fprintf(&b, "| x | %s |\n", formatFloat(r.MaxDiscrepancy.X))
	fmt.Fprintf(&b, "| p-value | %s |\n", formatFloat(r.MaxDiscrepancy.PValue))
	fmt.Fprintf(&b, "| frequency | %s |\n\n", formatFloat(r.MaxDiscrepancy.Frequency))

	if r.Disagreements == 0 {
		return b.Bytes()
	}
	b.WriteString("## Disagreeing patterns\n\n")
	b.WriteString("| # | itemset | a | reported a | x | reported x | frequency | p-value | reported p-value |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for _, c := range r.Checks {
		if c.Agrees {
			continue
		}
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %d | %d | %d | %s | %s |\n",
			c.Index+1, formatItems(c.Items), c.A, c.Reported.A, c.X, c.Reported.X,
			c.Frequency, formatFloat(c.PValue), formatFloat(c.Reported.PValue))
	}
	return b.Bytes()
}

// ScanMarkdown renders the rows of a cell scan.
func ScanMarkdown(m contingency.TableMargins, x int, rows []exact.ScanRow) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Cell scan (%s, x=%d)\n\n", m, x)
	b.WriteString("| a | Fisher | Barnard at x/n | Fisher / Barnard | Barnard max | argmax pi |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n", r.A,
			formatFloat(r.Fisher), formatFloat(r.Barnard), formatFloat(r.Ratio),
			formatFloat(r.BarnardMax), formatFloat(r.MaxPi))
	}
	return b.Bytes()
}

// HTML converts Markdown produced by this package into a standalone page.
func HTML(title string, md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, renderer)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatItems(items []int) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = strconv.Itoa(it)
	}
	return "{" + strings.Join(parts, " ") + "}"
}
