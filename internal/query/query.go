// Package query holds the Result Table model shared by the sandbox, the agent
// and the artifact codec, plus the guard that keeps the sandbox read-only.
package query

import (
	"context"
	"time"
)

type Request struct {
	SQL string
	// RowLimit lowers the engine's row cap for this request; it can never raise it.
	RowLimit int
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Table, error)
}

type Kind string

const (
	KindNumeric  Kind = "numeric"
	KindText     Kind = "text"
	KindTemporal Kind = "temporal"
)

type Column struct {
	Name         string `json:"name"`
	DatabaseType string `json:"database_type,omitempty"`
	Kind         Kind   `json:"kind"`
}

// Table is a row-oriented result with typed columns. Values are int64,
// float64, string, bool, time.Time or nil.
type Table struct {
	Columns []Column
	Rows    [][]any
	// Capped is set when the row cap was reached, so more rows may exist.
	Capped   bool
	Duration time.Duration
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.Name
	}
	return names
}

func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Head returns a copy of the table limited to the first n rows.
func (t Table) Head(n int) Table {
	if n < 0 || n >= len(t.Rows) {
		return t
	}
	out := t
	out.Rows = t.Rows[:n]
	return out
}

// ResolveKinds fills in the kind of every column the database type did not
// classify, by looking at the values themselves.
func (t *Table) ResolveKinds() {
	for i := range t.Columns {
		if t.Columns[i].Kind != "" {
			continue
		}
		values := make([]any, 0, len(t.Rows))
		for _, row := range t.Rows {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		t.Columns[i].Kind = InferKind(values)
	}
}
