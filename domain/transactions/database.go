// Package transactions holds a labelled transaction population and answers
// support queries for itemsets against it.
package transactions

import (
	"sort"

	"goexact/domain/contingency"
	"goexact/internal/errors"
)

// Itemset is a set of positive item identifiers, kept sorted.
type Itemset []int

// NewItemset sorts items and rejects duplicates and non-positive identifiers.
func NewItemset(items []int) (Itemset, error) {
	set := append(Itemset(nil), items...)
	sort.Ints(set)
	for i, item := range set {
		if item <= 0 {
			return nil, errors.InvalidInput("item identifiers must be positive integers")
		}
		if i > 0 && set[i-1] == item {
			return nil, errors.Newf(errors.CodeInvalidInput, "duplicate item %d in itemset", item)
		}
	}
	return set, nil
}

// Database is a transaction population with a vertical (item -> transaction
// ids) index for support counting.
type Database struct {
	rows     []Itemset
	tidlists map[int][]int
}

// NewDatabase indexes the given transactions. Each transaction must already
// be a valid Itemset.
func NewDatabase(rows []Itemset) *Database {
	db := &Database{rows: rows, tidlists: make(map[int][]int)}
	for tid, row := range rows {
		for _, item := range row {
			db.tidlists[item] = append(db.tidlists[item], tid)
		}
	}
	return db
}

// Len is the number of transactions.
func (db *Database) Len() int {
	return len(db.rows)
}

// Transaction returns the i-th transaction.
func (db *Database) Transaction(i int) Itemset {
	return db.rows[i]
}

// Covering returns the ascending ids of transactions containing every item of
// the itemset. The empty itemset is contained in every transaction.
func (db *Database) Covering(itemset Itemset) []int {
	if len(itemset) == 0 {
		all := make([]int, len(db.rows))
		for i := range all {
			all[i] = i
		}
		return all
	}

	// Intersect starting from the rarest item.
	lists := make([][]int, len(itemset))
	for i, item := range itemset {
		lists[i] = db.tidlists[item]
	}
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })

	result := append([]int(nil), lists[0]...)
	for _, list := range lists[1:] {
		result = intersect(result, list)
		if len(result) == 0 {
			break
		}
	}
	return result
}

func intersect(a, b []int) []int {
	out := a[:0]
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// Labels holds one numeric class label per transaction. Label 1 marks the
// positive class.
type Labels []float64

// Positive reports whether transaction i is in the positive class.
func (l Labels) Positive(i int) bool {
	return l[i] == 1
}

// PositiveCount is n1, the size of the positive-class row.
func (l Labels) PositiveCount() int {
	n1 := 0
	for i := range l {
		if l.Positive(i) {
			n1++
		}
	}
	return n1
}

// LabelledDatabase pairs a population with its aligned class labels.
type LabelledDatabase struct {
	DB     *Database
	Labels Labels
}

// NewLabelledDatabase fails when the label count differs from the
// transaction count, since every downstream count would silently be wrong.
func NewLabelledDatabase(db *Database, labels Labels) (*LabelledDatabase, error) {
	if db.Len() != len(labels) {
		return nil, errors.Newf(errors.CodeMalformedInput,
			"transaction population has %d records but %d class labels were supplied", db.Len(), len(labels))
	}
	if db.Len() == 0 {
		return nil, errors.Newf(errors.CodeMalformedInput, "transaction population is empty")
	}
	return &LabelledDatabase{DB: db, Labels: labels}, nil
}

// Margins returns n and n1 for the labelled population.
func (ld *LabelledDatabase) Margins() contingency.TableMargins {
	return contingency.TableMargins{N: ld.DB.Len(), N1: ld.Labels.PositiveCount()}
}

// Cell counts x (transactions containing the itemset) and a (those among
// them in the positive class).
func (ld *LabelledDatabase) Cell(itemset Itemset) contingency.Cell {
	tids := ld.DB.Covering(itemset)
	a := 0
	for _, tid := range tids {
		if ld.Labels.Positive(tid) {
			a++
		}
	}
	return contingency.Cell{X: len(tids), A: a}
}
