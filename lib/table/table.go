// Package table holds the tabular record batch passed between the store,
// the matcher dockers and the reconciler.
package table

import (
	"fmt"
	"slices"
)

// Row maps a column name to a scalar value: nil, string, int64, float64,
// bool, time.Time or orb.Point.
type Row map[string]any

// Batch is an ordered sequence of rows that all share the same column set.
type Batch struct {
	Columns []string
	Rows    []Row
}

func New(columns ...string) Batch {
	return Batch{Columns: slices.Clone(columns)}
}

func (b Batch) Len() int {
	return len(b.Rows)
}

func (b Batch) HasColumn(name string) bool {
	return slices.Contains(b.Columns, name)
}

// AddColumn appends a column (if it isn't already there) and backfills
// nil into every existing row.
func (b *Batch) AddColumn(name string) {
	if b.HasColumn(name) {
		return
	}
	b.Columns = append(b.Columns, name)
	for _, r := range b.Rows {
		r[name] = nil
	}
}

// Append adds a row, columns the batch does not know yet are added to it,
// columns the row does not carry are set to nil.
func (b *Batch) Append(row Row) {
	for name := range row {
		if !b.HasColumn(name) {
			b.AddColumn(name)
		}
	}
	out := make(Row, len(b.Columns))
	for _, c := range b.Columns {
		out[c] = row[c]
	}
	b.Rows = append(b.Rows, out)
}

// Validate checks that every row has exactly the batch's column set.
func (b Batch) Validate() error {
	for i, r := range b.Rows {
		if len(r) != len(b.Columns) {
			return fmt.Errorf("row %d has %d columns, batch has %d", i, len(r), len(b.Columns))
		}
		for _, c := range b.Columns {
			if _, ok := r[c]; !ok {
				return fmt.Errorf("row %d is missing column %q", i, c)
			}
		}
	}
	return nil
}

// Project returns a copy of the batch restricted to the given columns.
func (b Batch) Project(columns ...string) (Batch, error) {
	for _, c := range columns {
		if !b.HasColumn(c) {
			return Batch{}, fmt.Errorf("unknown column %q", c)
		}
	}
	out := New(columns...)
	out.Rows = make([]Row, len(b.Rows))
	for i, r := range b.Rows {
		projected := make(Row, len(columns))
		for _, c := range columns {
			projected[c] = r[c]
		}
		out.Rows[i] = projected
	}
	return out, nil
}

// Drop returns a copy of the batch without the given columns, unknown
// columns are ignored.
func (b Batch) Drop(columns ...string) Batch {
	var keep []string
	for _, c := range b.Columns {
		if !slices.Contains(columns, c) {
			keep = append(keep, c)
		}
	}
	out, _ := b.Project(keep...)
	return out
}

func (b Batch) Clone() Batch {
	out := New(b.Columns...)
	out.Rows = make([]Row, len(b.Rows))
	for i, r := range b.Rows {
		out.Rows[i] = make(Row, len(r))
		for k, v := range r {
			out.Rows[i][k] = v
		}
	}
	return out
}

// Column returns the values of a single column in row order.
func (b Batch) Column(name string) []any {
	out := make([]any, len(b.Rows))
	for i, r := range b.Rows {
		out[i] = r[name]
	}
	return out
}
