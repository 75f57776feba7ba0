package excel

import (
	"io"
	"strconv"
	"strings"

	"goexact/adapters/stats/exact"
	"goexact/domain/contingency"
	"goexact/internal/errors"

	"github.com/xuri/excelize/v2"
)

const (
	scanSheet   = "Scan"
	tableSheet  = "Table"
	defaultName = "Sheet1"
)

var scanHeader = []interface{}{"a", "fisher", "barnard", "ratio", "barnard_max", "max_pi"}

// ScanExport is the content of one cell-scan workbook.
type ScanExport struct {
	Margins contingency.TableMargins
	X       int
	Fisher  exact.FisherVariant
	Rows    []exact.ScanRow
}

// WriteScan renders a scan as an xlsx workbook: the rows on a "Scan" sheet and
// the margins on a "Table" sheet.
func WriteScan(w io.Writer, export ScanExport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultName, scanSheet); err != nil {
		return errors.Wrap(err, "rename scan sheet")
	}
	if err := f.SetSheetRow(scanSheet, "A1", &scanHeader); err != nil {
		return errors.Wrap(err, "write scan header")
	}
	for i, r := range export.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "scan cell name")
		}
		values := []interface{}{r.A, r.Fisher, r.Barnard, r.Ratio, r.BarnardMax, r.MaxPi}
		if err := f.SetSheetRow(scanSheet, cell, &values); err != nil {
			return errors.Wrapf(err, "write scan row a=%d", r.A)
		}
	}

	if _, err := f.NewSheet(tableSheet); err != nil {
		return errors.Wrap(err, "create table sheet")
	}
	variant := export.Fisher
	if variant == "" {
		variant = exact.FisherPointProbabilityVariant
	}
	meta := [][]interface{}{
		{"n", export.Margins.N},
		{"n1", export.Margins.N1},
		{"x", export.X},
		{"fisher_variant", string(variant)},
	}
	for i, row := range meta {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(tableSheet, cell, &row); err != nil {
			return errors.Wrap(err, "write table sheet")
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write scan workbook")
	}
	return nil
}

// ReadScan parses a workbook produced by WriteScan.
func ReadScan(r io.Reader) (*ScanExport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "open scan workbook"))
	}
	defer f.Close()

	meta, err := f.GetRows(tableSheet)
	if err != nil {
		return nil, errors.WithCode(errors.CodeMalformedInput, errors.Wrap(err, "read table sheet"))
	}
	export := &ScanExport{}
	for i, row := range meta {
		if len(row) < 2 {
			return nil, errors.MalformedInput(tableSheet, i+1, "expected key and value")
		}
		if row[0] == "fisher_variant" {
			export.Fisher = exact.FisherVariant(row[1])
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, errors.MalformedInput(tableSheet, i+1, "invalid %s %q", row[0], row[1])
		}
		switch row[0] {
		case "n":
			export.Margins.N = v
		case "n1":
			export.Margins.N1 = v
		case "x":
			export.X = v
		}
	}

	rows, err := f.GetRows(scanSheet)
	if err != nil {
		return nil, errors.WithCode(errors.CodeMalformedInput, errors.Wrap(err, "read scan sheet"))
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		parsed, err := parseScanRow(row)
		if err != nil {
			return nil, errors.MalformedInput(scanSheet, i+1, "%v", err)
		}
		export.Rows = append(export.Rows, parsed)
	}
	return export, nil
}

func parseScanRow(row []string) (exact.ScanRow, error) {
	var out exact.ScanRow
	if len(row) < 4 {
		return out, errors.New(errors.CodeMalformedInput, "short scan row")
	}
	a, err := strconv.Atoi(row[0])
	if err != nil {
		return out, err
	}
	out.A = a
	fields := []*float64{&out.Fisher, &out.Barnard, &out.Ratio, &out.BarnardMax, &out.MaxPi}
	for j, dst := range fields {
		if j+1 >= len(row) || row[j+1] == "" {
			continue
		}
		if *dst, err = strconv.ParseFloat(row[j+1], 64); err != nil {
			return out, err
		}
	}
	return out, nil
}
