// Package postgres stores the answer journal in Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medinsight/medinsight/internal/journal"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping journal db: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, entry journal.Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	query := `
INSERT INTO answer_journal (entry_id, question, sql_text, status, attempts, row_count, error_message, artifact_key, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Question,
		entry.SQL,
		entry.Status,
		entry.Attempts,
		entry.RowCount,
		entry.ErrorMessage,
		entry.ArtifactKey,
		entry.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. limit is clamped to [1, 500] and
// defaults to 50.
func (r *Repository) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT entry_id, question, sql_text, status, attempts, row_count, error_message, artifact_key, duration_ms, created_at
FROM answer_journal
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []journal.Entry
	for rows.Next() {
		var (
			entry      journal.Entry
			durationMS int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Question,
			&entry.SQL,
			&entry.Status,
			&entry.Attempts,
			&entry.RowCount,
			&entry.ErrorMessage,
			&entry.ArtifactKey,
			&durationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return entries, nil
}
