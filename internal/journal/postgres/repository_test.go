package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/medinsight/medinsight/internal/journal"
)

const insertEntrySQL = `
INSERT INTO answer_journal (entry_id, question, sql_text, status, attempts, row_count, error_message, artifact_key, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func TestRecordInsertsEntry(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(insertEntrySQL)).
		WithArgs("entry-1", "top drugs", "SELECT 1", "succeeded", 2, 5, "", "answers/2026/02/19/a.parquet", int64(1500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), journal.Entry{
		ID:          "entry-1",
		Question:    "top drugs",
		SQL:         "SELECT 1",
		Status:      "succeeded",
		Attempts:    2,
		RowCount:    5,
		ArtifactKey: "answers/2026/02/19/a.parquet",
		Duration:    1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRecordGeneratesID(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(insertEntrySQL)).
		WithArgs(sqlmock.AnyArg(), "q", "", "failed", 0, 0, "model unreachable", "", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Record(context.Background(), journal.Entry{Question: "q", Status: "failed", ErrorMessage: "model unreachable"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRecordWrapsErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	boom := errors.New("connection reset")

	mock.ExpectExec(regexp.QuoteMeta(insertEntrySQL)).WillReturnError(boom)

	err := repo.Record(context.Background(), journal.Entry{ID: "x", Question: "q", Status: "empty"})
	if !errors.Is(err, boom) {
		t.Fatalf("Record() error = %v, want wrapped %v", err, boom)
	}
	assertSQLMock(t, mock)
}

func TestRecentClampsLimitAndScansRows(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	columns := []string{"entry_id", "question", "sql_text", "status", "attempts", "row_count", "error_message", "artifact_key", "duration_ms", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM answer_journal
ORDER BY created_at DESC
LIMIT $1`)).
		WithArgs(500).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("entry-2", "second", "SELECT 2", "empty", 4, 0, "", "", int64(2500), now).
			AddRow("entry-1", "first", "SELECT 1", "succeeded", 1, 3, "", "answers/k.parquet", int64(10), now.Add(-time.Minute)))

	entries, err := repo.Recent(context.Background(), 10000)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d", len(entries))
	}
	if entries[0].ID != "entry-2" || entries[0].Duration != 2500*time.Millisecond || entries[0].Attempts != 4 {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].ArtifactKey != "answers/k.parquet" || entries[1].RowCount != 3 {
		t.Fatalf("entries[1] = %+v", entries[1])
	}
	assertSQLMock(t, mock)
}

func TestRecentDefaultsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM answer_journal")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"entry_id"}))

	entries, err := repo.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v", entries)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
