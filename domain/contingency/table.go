// Package contingency holds the 2x2 table vocabulary shared by the exact tests.
//
// A table cross-tabulates class label (positive row of size N1, negative row of
// size N0 = N - N1) against pattern presence (column margin X). The single free
// cell A counts the positive-class transactions in which the pattern occurs:
//
//	          present   absent  | row
//	positive     A      N1 - A  | N1
//	negative   X - A      ...   | N0
//	-------------------------------
//	             X      N - X   | N
package contingency

import (
	"fmt"

	"goexact/internal/errors"
)

// TableMargins are the row totals every table in a population shares.
// They are passed explicitly into every computation; nothing reads them from
// ambient state, so concurrent evaluation over distinct margins is safe.
type TableMargins struct {
	N  int `json:"n"`
	N1 int `json:"n1"`
}

// NewMargins validates and returns margins for a population of n observations,
// n1 of them in the positive class.
func NewMargins(n, n1 int) (TableMargins, error) {
	m := TableMargins{N: n, N1: n1}
	if err := m.Validate(); err != nil {
		return TableMargins{}, err
	}
	return m, nil
}

// Validate checks 0 <= N1 <= N and N > 0.
func (m TableMargins) Validate() error {
	if m.N <= 0 {
		return errors.DomainError("total observations n=%d must be positive", m.N)
	}
	if m.N1 < 0 || m.N1 > m.N {
		return errors.DomainError("positive-class size n1=%d outside [0, %d]", m.N1, m.N)
	}
	return nil
}

// N0 is the negative-class row size.
func (m TableMargins) N0() int {
	return m.N - m.N1
}

// FeasibleRange returns the inclusive bounds of A for column margin x.
func (m TableMargins) FeasibleRange(x int) (lo, hi int) {
	lo = m.N1 - (m.N - x)
	if lo < 0 {
		lo = 0
	}
	hi = m.N1
	if x < hi {
		hi = x
	}
	return lo, hi
}

// PopulationSize is the number of feasible (x, a) pairs over x in [0, N].
func (m TableMargins) PopulationSize() int {
	// Each (a, x-a) with a in [0,N1] and x-a in [0,N0] is one table.
	return (m.N1 + 1) * (m.N0() + 1)
}

// Cell validates (x, a) against the margins and returns it.
func (m TableMargins) Cell(x, a int) (Cell, error) {
	c := Cell{X: x, A: a}
	if err := m.ValidateCell(c); err != nil {
		return Cell{}, err
	}
	return c, nil
}

// ValidateCell rejects column margins outside [0, N] and cell counts outside
// the feasible range for X.
func (m TableMargins) ValidateCell(c Cell) error {
	if c.X < 0 || c.X > m.N {
		return errors.InfeasibleTable("margin x=%d outside [0, %d]", c.X, m.N)
	}
	lo, hi := m.FeasibleRange(c.X)
	if c.A < lo || c.A > hi {
		return errors.InfeasibleTable("cell a=%d outside feasible range [%d, %d] for n=%d n1=%d x=%d",
			c.A, lo, hi, m.N, m.N1, c.X)
	}
	return nil
}

// String renders the margins for logs and error messages.
func (m TableMargins) String() string {
	return fmt.Sprintf("n=%d n1=%d n0=%d", m.N, m.N1, m.N0())
}

// Cell is the observed part of a table: column margin X and cell count A.
type Cell struct {
	X int `json:"x"`
	A int `json:"a"`
}

// Table is a fully specified 2x2 table.
type Table struct {
	Margins TableMargins `json:"margins"`
	Cell    Cell         `json:"cell"`
}

// NewTable validates all four numbers at once.
func NewTable(n, n1, x, a int) (Table, error) {
	m, err := NewMargins(n, n1)
	if err != nil {
		return Table{}, err
	}
	c, err := m.Cell(x, a)
	if err != nil {
		return Table{}, err
	}
	return Table{Margins: m, Cell: c}, nil
}

// Counts returns the four interior counts in row-major order.
func (t Table) Counts() (a, b, c, d int) {
	a = t.Cell.A
	b = t.Margins.N1 - t.Cell.A
	c = t.Cell.X - t.Cell.A
	d = t.Margins.N0() - c
	return a, b, c, d
}

// Degenerate reports whether the column margin carries no information (x = 0 or x = N).
func (t Table) Degenerate() bool {
	return t.Cell.X == 0 || t.Cell.X == t.Margins.N
}

// MLE is the maximum-likelihood estimate x/n of the common success rate.
func (t Table) MLE() float64 {
	return float64(t.Cell.X) / float64(t.Margins.N)
}
