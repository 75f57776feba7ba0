// Package itemsets reads the text artefacts exchanged with the external
// enumeration tools: significant-itemset lists, reported p-value tables,
// transaction populations and class labels.
package itemsets

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"goexact/domain/transactions"
	"goexact/internal/errors"
)

const maxLineBytes = 16 << 20

// SignificantItemset is one record of an enumeration result: the itemset and
// the frequency x the tool reported for it.
type SignificantItemset struct {
	Items     transactions.Itemset `json:"items"`
	Frequency int                  `json:"frequency"`
}

// ReportedPValue is one row of the reported p-value table.
type ReportedPValue struct {
	A      int     `json:"a"`
	X      int     `json:"x"`
	PValue float64 `json:"p_value"`
}

// ReadSignificantItemsets parses lines of the form "3 7 12 (42)". Blank
// lines are skipped.
func ReadSignificantItemsets(r io.Reader, source string) ([]SignificantItemset, error) {
	var out []SignificantItemset
	err := eachLine(r, func(line int, text string) error {
		fields := strings.Fields(text)
		if len(fields) == 0 {
			return nil
		}
		last := fields[len(fields)-1]
		if len(last) < 3 || last[0] != '(' || last[len(last)-1] != ')' {
			return errors.MalformedInput(source, line, "expected trailing parenthesised frequency, got %q", last)
		}
		freq, err := strconv.Atoi(last[1 : len(last)-1])
		if err != nil || freq < 0 {
			return errors.MalformedInput(source, line, "invalid frequency %q", last)
		}
		items, err := parseItems(fields[:len(fields)-1])
		if err != nil {
			return errors.MalformedInput(source, line, "%v", err)
		}
		out = append(out, SignificantItemset{Items: items, Frequency: freq})
		return nil
	})
	return out, err
}

// ReadReportedPValues parses a comma-separated table with one header row and
// three columns: a, x, p-value.
func ReadReportedPValues(r io.Reader, source string) ([]ReportedPValue, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = 3
	reader.ReuseRecord = true

	var out []ReportedPValue
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.MalformedInput(source, line, "%v", err)
		}
		if line == 1 {
			continue
		}
		a, err := parseCount(record[0])
		if err != nil {
			return nil, errors.MalformedInput(source, line, "cell count: %v", err)
		}
		x, err := parseCount(record[1])
		if err != nil {
			return nil, errors.MalformedInput(source, line, "margin: %v", err)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil || p < 0 || p > 1 || math.IsNaN(p) {
			return nil, errors.MalformedInput(source, line, "p-value %q not in [0,1]", record[2])
		}
		out = append(out, ReportedPValue{A: a, X: x, PValue: p})
	}
	return out, nil
}

// ReadTransactions parses one transaction per line. Every line, blank ones
// included, is a record so that line order stays aligned with the labels.
// A duplicated item within a record is fatal.
func ReadTransactions(r io.Reader, source string) (*transactions.Database, error) {
	var rows []transactions.Itemset
	err := eachLine(r, func(line int, text string) error {
		items, err := parseItems(strings.Fields(text))
		if err != nil {
			return errors.MalformedInput(source, line, "%v", err)
		}
		rows = append(rows, items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transactions.NewDatabase(rows), nil
}

// ReadLabels parses one numeric label per line, skipping blank lines.
func ReadLabels(r io.Reader, source string) (transactions.Labels, error) {
	var labels transactions.Labels
	err := eachLine(r, func(line int, text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) {
			return errors.MalformedInput(source, line, "label %q is not numeric", text)
		}
		labels = append(labels, v)
		return nil
	})
	return labels, err
}

// LoadLabelledDatabase reads a transaction file and its label file and checks
// that they line up.
func LoadLabelledDatabase(transactionsPath, labelsPath string) (*transactions.LabelledDatabase, error) {
	var db *transactions.Database
	if err := withFile(transactionsPath, func(f io.Reader) (err error) {
		db, err = ReadTransactions(f, transactionsPath)
		return err
	}); err != nil {
		return nil, err
	}

	var labels transactions.Labels
	if err := withFile(labelsPath, func(f io.Reader) (err error) {
		labels, err = ReadLabels(f, labelsPath)
		return err
	}); err != nil {
		return nil, err
	}

	return transactions.NewLabelledDatabase(db, labels)
}

// LoadSignificantItemsets reads an itemset list from disk.
func LoadSignificantItemsets(path string) ([]SignificantItemset, error) {
	var out []SignificantItemset
	err := withFile(path, func(f io.Reader) (err error) {
		out, err = ReadSignificantItemsets(f, path)
		return err
	})
	return out, err
}

// LoadReportedPValues reads a reported p-value table from disk.
func LoadReportedPValues(path string) ([]ReportedPValue, error) {
	var out []ReportedPValue
	err := withFile(path, func(f io.Reader) (err error) {
		out, err = ReadReportedPValues(f, path)
		return err
	})
	return out, err
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(errors.InvalidInput(err.Error()), "open %s", path)
	}
	defer f.Close()
	return fn(f)
}

func eachLine(r io.Reader, fn func(line int, text string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if err := fn(line, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read input")
	}
	return nil
}

func parseItems(fields []string) (transactions.Itemset, error) {
	items := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Newf(errors.CodeMalformedInput, "item %q is not an integer", f)
		}
		items[i] = v
	}
	return transactions.NewItemset(items)
}

// parseCount accepts integral values written as floats ("42" or "42.0").
func parseCount(s string) (int, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v != math.Trunc(v) {
		return 0, errors.Newf(errors.CodeMalformedInput, "%q is not a non-negative integer", s)
	}
	return int(v), nil
}
