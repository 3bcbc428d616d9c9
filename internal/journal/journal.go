// Package journal keeps an audit trail of answered questions. It records the
// outcome of each question, never the state of an in-flight loop.
package journal

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("answer journal is disabled")

type Entry struct {
	ID           string        `json:"id"`
	Question     string        `json:"question"`
	SQL          string        `json:"sql,omitempty"`
	Status       string        `json:"status"`
	Attempts     int           `json:"attempts"`
	RowCount     int           `json:"row_count"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ArtifactKey  string        `json:"artifact_key,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	CreatedAt    time.Time     `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

type Journal interface {
	Recorder
	Reader
}
