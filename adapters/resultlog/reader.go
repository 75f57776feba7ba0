package resultlog

import (
	"encoding/csv"
	"io"
	"strconv"

	"goexact/internal/errors"
)

// ReadRows parses a results file written by Appender. The header row is
// required and must match.
func ReadRows(r io.Reader, source string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	first, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.MalformedInput(source, 1, "%v", err)
	}
	for i, col := range header {
		if first[i] != col {
			return nil, errors.MalformedInput(source, 1, "column %d is %q, want %q", i+1, first[i], col)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.MalformedInput(source, line, "%v", err)
		}
		row, err := parseRow(record)
		if err != nil {
			return nil, errors.MalformedInput(source, line, "%v", err)
		}
		rows = append(rows, row)
	}
}

func parseRow(record []string) (Row, error) {
	ints := make([]int, 0, 6)
	for _, i := range []int{1, 2, 3, 4, 7, 8} {
		v, err := strconv.Atoi(record[i])
		if err != nil {
			return Row{}, errors.Newf(errors.CodeMalformedInput, "column %s: %v", header[i], err)
		}
		ints = append(ints, v)
	}
	p, err := strconv.ParseFloat(record[5], 64)
	if err != nil {
		return Row{}, errors.Newf(errors.CodeMalformedInput, "p_value: %v", err)
	}
	pi, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return Row{}, errors.Newf(errors.CodeMalformedInput, "pi: %v", err)
	}
	return Row{
		RunID: record[0],
		N:     ints[0], N1: ints[1],
		X: ints[2], A: ints[3],
		PValue:    p,
		Pi:        pi,
		Evaluated: ints[4],
		Failed:    ints[5],
	}, nil
}
