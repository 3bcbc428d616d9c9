// Package duckdb is the SQL sandbox: it validates a statement, opens the
// database read-only for that one call, and returns a capped Result Table.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/medinsight/medinsight/internal/query"
)

// Opener returns a fresh handle for one execution. The engine closes it.
type Opener func(ctx context.Context) (*sql.DB, error)

type Engine struct {
	open    Opener
	rowCap  int
	timeout time.Duration
}

func NewEngine(databasePath string, rowCap int, timeout time.Duration) *Engine {
	return NewEngineWithOpener(ReadOnlyOpener(databasePath), rowCap, timeout)
}

func NewEngineWithOpener(open Opener, rowCap int, timeout time.Duration) *Engine {
	return &Engine{open: open, rowCap: rowCap, timeout: timeout}
}

// sandboxOptions keep the handle read-only and away from the host: external
// access covers file readers such as read_text and read_csv as well as
// extension installs, and the lock stops a statement from turning it back on.
const sandboxOptions = "access_mode=READ_ONLY&enable_external_access=false&lock_configuration=true"

// ReadOnlyOpener opens databasePath with sandboxOptions so the sandbox never
// takes the write lock and never reads files other than the database.
func ReadOnlyOpener(databasePath string) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		path := strings.TrimSpace(databasePath)
		if path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		db, err := sql.Open("duckdb", path+"?"+sandboxOptions)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

type scanResult struct {
	table query.Table
	err   error
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Table, error) {
	statement, err := query.Validate(request.SQL)
	if err != nil {
		return query.Table{}, err
	}
	limit := e.rowCap
	if request.RowLimit > 0 && (limit <= 0 || request.RowLimit < limit) {
		limit = request.RowLimit
	}
	statement = query.EnsureLimit(statement, limit)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan scanResult, 1)
	go func() {
		db, err := e.open(ctx)
		if err != nil {
			done <- scanResult{err: fmt.Errorf("open duckdb: %w", err)}
			return
		}
		table, err := scanTable(ctx, db, statement, limit)
		_ = db.Close()
		done <- scanResult{table: table, err: err}
	}()

	// The scan owns the handle, so a driver that ignores cancellation cannot
	// hold the caller past the deadline.
	select {
	case result := <-done:
		if result.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return query.Table{}, e.timeoutError()
			}
			return query.Table{}, result.err
		}
		result.table.Duration = time.Since(start)
		return result.table, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return query.Table{}, e.timeoutError()
		}
		return query.Table{}, fmt.Errorf("execute query: %w", ctx.Err())
	}
}

// Ping opens and closes the database to prove it is reachable read-only.
func (e *Engine) Ping(ctx context.Context) error {
	db, err := e.open(ctx)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	return db.Close()
}

// Open exposes the read-only opener for callers that introspect rather than
// execute, such as the schema descriptor.
func (e *Engine) Open(ctx context.Context) (*sql.DB, error) {
	db, err := e.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

func (e *Engine) timeoutError() error {
	return fmt.Errorf("%w after %s", query.ErrTimeout, e.timeout)
}

func scanTable(ctx context.Context, db *sql.DB, statement string, limit int) (query.Table, error) {
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return query.Table{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return query.Table{}, fmt.Errorf("query columns: %w", err)
	}
	table := query.Table{
		Columns: make([]query.Column, len(columnTypes)),
		Rows:    make([][]any, 0),
	}
	for i, columnType := range columnTypes {
		databaseType := columnType.DatabaseTypeName()
		table.Columns[i] = query.Column{
			Name:         columnType.Name(),
			DatabaseType: databaseType,
			Kind:         query.KindForDatabaseType(databaseType),
		}
	}

	for rows.Next() {
		if limit > 0 && len(table.Rows) >= limit {
			table.Capped = true
			break
		}
		values := make([]any, len(table.Columns))
		scanTargets := make([]any, len(table.Columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Table{}, fmt.Errorf("scan row: %w", err)
		}
		table.Rows = append(table.Rows, normalizeValues(table.Columns, values))
	}
	if err := rows.Err(); err != nil {
		return query.Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	if limit > 0 && len(table.Rows) >= limit {
		table.Capped = true
	}
	table.ResolveKinds()
	return table, nil
}
