// Package schema renders the analytical database as text a language model can
// ground SQL on: tables with their roles and columns, then join hints.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

type Role string

const (
	RoleRaw       Role = "raw"
	RoleAggregate Role = "aggregate"
)

const fallbackDescription = "No description available. Inspect the columns before relying on this table."

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name        string   `json:"name"`
	Role        Role     `json:"role"`
	Description string   `json:"description"`
	Columns     []Column `json:"columns"`
	RowCount    int64    `json:"row_count"`
	Err         string   `json:"error,omitempty"`
}

// Description is built once per agent and never modified afterwards.
type Description struct {
	Tables    []Table  `json:"tables"`
	JoinHints []string `json:"join_hints"`
}

type TableHint struct {
	Role        Role
	Description string
}

type Hints struct {
	Tables    map[string]TableHint
	JoinHints []string
}

// Queryer is satisfied by *sql.DB and *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Describe introspects every table in the main schema. A failure on one table
// is written into that table's description; only a failure to list tables is
// returned as an error.
func Describe(ctx context.Context, db Queryer, hints Hints) (Description, error) {
	names, err := listTables(ctx, db)
	if err != nil {
		return Description{}, err
	}

	description := Description{
		Tables:    make([]Table, 0, len(names)),
		JoinHints: append([]string(nil), hints.JoinHints...),
	}
	for _, name := range names {
		table := Table{Name: name, Role: RoleRaw, Description: fallbackDescription}
		if hint, ok := hints.Tables[name]; ok {
			if hint.Role != "" {
				table.Role = hint.Role
			}
			if strings.TrimSpace(hint.Description) != "" {
				table.Description = strings.TrimSpace(hint.Description)
			}
		}

		columns, err := describeColumns(ctx, db, name)
		if err == nil {
			table.Columns = columns
			table.RowCount, err = countRows(ctx, db, name)
		}
		if err != nil {
			table.Err = err.Error()
			table.Description = fmt.Sprintf("%s [introspection failed: %v]", table.Description, err)
		}
		description.Tables = append(description.Tables, table)
	}
	return description, nil
}

func (d Description) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

// Render returns the prompt text for the description.
func (d Description) Render() string {
	var b strings.Builder
	b.WriteString("Tables:\n")
	for _, table := range d.Tables {
		b.WriteString("\n- ")
		b.WriteString(table.Name)
		b.WriteString(" (")
		b.WriteString(string(table.Role))
		if table.Err == "" {
			b.WriteString(", ")
			b.WriteString(strconv.FormatInt(table.RowCount, 10))
			b.WriteString(" rows")
		}
		b.WriteString("): ")
		b.WriteString(table.Description)
		b.WriteString("\n")
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "    %s %s\n", column.Name, column.Type)
		}
	}
	if len(d.JoinHints) > 0 {
		b.WriteString("\nJoin and usage hints:\n")
		for _, hint := range d.JoinHints {
			b.WriteString("- ")
			b.WriteString(hint)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func listTables(ctx context.Context, db Queryer) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

func describeColumns(ctx context.Context, db Queryer, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, "DESCRIBE "+quoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe %s columns: %w", table, err)
	}
	nameIndex, typeIndex := indexOf(names, "column_name"), indexOf(names, "column_type")
	if nameIndex < 0 || typeIndex < 0 {
		return nil, fmt.Errorf("describe %s: unexpected result columns %v", table, names)
	}

	var columns []Column
	for rows.Next() {
		values := make([]sql.NullString, len(names))
		targets := make([]any, len(names))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan %s column: %w", table, err)
		}
		columns = append(columns, Column{Name: values[nameIndex].String, Type: values[typeIndex].String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s columns: %w", table, err)
	}
	return columns, nil
}

func countRows(ctx context.Context, db Queryer, table string) (int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("scan %s count: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate %s count: %w", table, err)
	}
	return count, nil
}

func indexOf(values []string, want string) int {
	for i, value := range values {
		if strings.EqualFold(value, want) {
			return i
		}
	}
	return -1
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
