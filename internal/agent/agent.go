// Package agent answers a question about the prescriptions database by
// synthesizing SQL, running it in the sandbox and repairing failed or empty
// attempts before narrating the result.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medinsight/medinsight/internal/journal"
	"github.com/medinsight/medinsight/internal/nl2sql"
	"github.com/medinsight/medinsight/internal/observability"
	"github.com/medinsight/medinsight/internal/prompts"
	"github.com/medinsight/medinsight/internal/query"
	"github.com/medinsight/medinsight/internal/schema"
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	// ErrSynthesis and ErrNarration mark which model call ended the loop.
	ErrSynthesis = errors.New("sql synthesis failed")
	ErrNarration = errors.New("result narration failed")
)

type State int

const (
	StateGenerating State = iota + 1
	StateExecuting
	StateSucceeded
	StateEmptyRetry
	StateErrorRetry
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateExecuting:
		return "executing"
	case StateSucceeded:
		return "succeeded"
	case StateEmptyRetry:
		return "empty_retry"
	case StateErrorRetry:
		return "error_retry"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusEmpty     Status = "empty"
	StatusFailed    Status = "failed"
)

// Answer is the outcome of one question. SQL and Table describe the last
// executed attempt for presentation layers.
type Answer struct {
	Text        string       `json:"answer"`
	SQL         string       `json:"sql,omitempty"`
	Table       *query.Table `json:"-"`
	Status      Status       `json:"status"`
	Attempts    int          `json:"attempts"`
	ArtifactKey string       `json:"artifact_key,omitempty"`
}

// ArtifactSaver persists the final result table and returns its key.
type ArtifactSaver interface {
	Save(ctx context.Context, table query.Table) (string, error)
}

type Config struct {
	// MaxRetries is the number of repair attempts after the first execution.
	MaxRetries   int
	HistoryTurns int
}

type Dependencies struct {
	Synthesizer nl2sql.Synthesizer
	Engine      query.Engine
	Narrator    *Narrator
	Catalog     *prompts.Catalog
	Schema      schema.Description
	// Artifacts and Journal are optional.
	Artifacts ArtifactSaver
	Journal   journal.Recorder
	Logger    *slog.Logger
}

// Agent holds only immutable state and is safe for concurrent use.
type Agent struct {
	synthesizer  nl2sql.Synthesizer
	engine       query.Engine
	narrator     *Narrator
	catalog      *prompts.Catalog
	schemaText   string
	artifacts    ArtifactSaver
	journal      journal.Recorder
	logger       *slog.Logger
	maxRetries   int
	historyTurns int
}

func New(cfg Config, deps Dependencies) (*Agent, error) {
	if deps.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if deps.Narrator == nil {
		return nil, fmt.Errorf("narrator is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("prompt catalog is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		synthesizer:  deps.Synthesizer,
		engine:       deps.Engine,
		narrator:     deps.Narrator,
		catalog:      deps.Catalog,
		schemaText:   deps.Schema.Render(),
		artifacts:    deps.Artifacts,
		journal:      deps.Journal,
		logger:       logger,
		maxRetries:   cfg.MaxRetries,
		historyTurns: cfg.HistoryTurns,
	}, nil
}

// attempt tracks one pass through the loop. It lives on the stack of Answer.
type attempt struct {
	number       int
	sql          string
	instructions string
	outcome      query.Outcome
}

// Answer runs the self-correction loop for question. The loop executes at
// most 1+MaxRetries statements. A synthesis or narration failure is returned
// as an error; exhausting the retry budget is not.
func (a *Agent) Answer(ctx context.Context, question string, history []nl2sql.Turn) (Answer, error) {
	started := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{Status: StatusFailed}, ErrEmptyQuestion
	}
	turns := nl2sql.Window(history, a.historyTurns)

	var current attempt
	state := StateGenerating
	for {
		switch state {
		case StateGenerating:
			result, err := a.synthesizer.Synthesize(ctx, nl2sql.Request{
				Question:     question,
				Schema:       a.schemaText,
				History:      turns,
				Instructions: current.instructions,
			})
			if err != nil {
				answer := Answer{Status: StatusFailed, SQL: current.sql, Attempts: current.number}
				err = fmt.Errorf("%w on attempt %d: %w", ErrSynthesis, current.number+1, err)
				a.finish(ctx, question, answer, err, started)
				return answer, err
			}
			current.sql = result.SQL
			state = StateExecuting

		case StateExecuting:
			current.number++
			table, err := a.engine.Execute(ctx, query.Request{SQL: current.sql})
			current.outcome = query.OutcomeOf(table, err)
			a.logAttempt(ctx, current)
			if ctxErr := ctx.Err(); ctxErr != nil {
				answer := Answer{Status: StatusFailed, SQL: current.sql, Attempts: current.number}
				a.finish(ctx, question, answer, ctxErr, started)
				return answer, ctxErr
			}
			state = a.next(current)

		case StateErrorRetry:
			instructions, err := a.catalog.Render(prompts.ErrorRepair, map[string]any{
				"SQL":   current.sql,
				"Error": current.outcome.Message,
			})
			if err != nil {
				return Answer{Status: StatusFailed, SQL: current.sql, Attempts: current.number}, err
			}
			current.instructions = instructions
			state = StateGenerating

		case StateEmptyRetry:
			instructions, err := a.catalog.Render(prompts.EmptyRepair, map[string]any{
				"SQL":        current.sql,
				"Heuristics": a.catalog.Broadening,
			})
			if err != nil {
				return Answer{Status: StatusFailed, SQL: current.sql, Attempts: current.number}, err
			}
			current.instructions = instructions
			state = StateGenerating

		case StateExhausted:
			answer, err := a.exhausted(current)
			a.finish(ctx, question, answer, err, started)
			return answer, err

		case StateSucceeded:
			table := current.outcome.Table
			answer := Answer{SQL: current.sql, Table: &table, Status: StatusSucceeded, Attempts: current.number}
			answer.ArtifactKey = a.saveArtifact(ctx, table)
			text, err := a.narrator.Narrate(ctx, question, current.sql, &table)
			if err != nil {
				answer.Status = StatusFailed
				err = fmt.Errorf("%w: %w", ErrNarration, err)
				a.finish(ctx, question, answer, err, started)
				return answer, err
			}
			answer.Text = text
			a.finish(ctx, question, answer, nil, started)
			return answer, nil

		default:
			return Answer{Status: StatusFailed}, fmt.Errorf("agent reached unknown state %d", state)
		}
	}
}

// next decides the transition after an execution. Errors are checked before
// empty results.
func (a *Agent) next(current attempt) State {
	retriesLeft := current.number <= a.maxRetries
	switch current.outcome.Kind {
	case query.OutcomeError:
		if retriesLeft {
			return StateErrorRetry
		}
		return StateExhausted
	case query.OutcomeEmpty:
		if retriesLeft {
			return StateEmptyRetry
		}
		return StateExhausted
	default:
		return StateSucceeded
	}
}

func (a *Agent) exhausted(current attempt) (Answer, error) {
	answer := Answer{SQL: current.sql, Attempts: current.number}
	if current.outcome.Kind == query.OutcomeError {
		text, err := a.catalog.Render(prompts.ErrorExhausted, map[string]any{"Error": current.outcome.Message})
		if err != nil {
			answer.Status = StatusFailed
			return answer, err
		}
		answer.Text = text
		answer.Status = StatusFailed
		return answer, nil
	}
	table := current.outcome.Table
	answer.Table = &table
	answer.Text = a.catalog.Messages.NotFound
	answer.Status = StatusEmpty
	return answer, nil
}

func (a *Agent) logAttempt(ctx context.Context, current attempt) {
	outcome := current.outcome
	observability.ObserveAttempt(outcome.Label())

	attrs := []slog.Attr{
		observability.TraceAttr(ctx),
		slog.Int("attempt", current.number),
		slog.String("outcome", outcome.Label()),
		slog.String("sql", current.sql),
	}
	switch outcome.Kind {
	case query.OutcomeError:
		attrs = append(attrs, slog.String("error", outcome.Message))
		a.logger.LogAttrs(ctx, slog.LevelWarn, "query attempt failed", attrs...)
	case query.OutcomeEmpty:
		a.logger.LogAttrs(ctx, slog.LevelWarn, "query attempt returned no rows", attrs...)
	default:
		attrs = append(attrs, slog.Int("rows", len(outcome.Table.Rows)), slog.Bool("capped", outcome.Table.Capped))
		a.logger.LogAttrs(ctx, slog.LevelInfo, "query attempt succeeded", attrs...)
	}
}

func (a *Agent) saveArtifact(ctx context.Context, table query.Table) string {
	if a.artifacts == nil {
		return ""
	}
	key, err := a.artifacts.Save(ctx, table)
	observability.ObserveArtifactWrite(err)
	if err != nil {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "save result artifact failed",
			observability.TraceAttr(ctx), slog.Any("error", err))
		return ""
	}
	return key
}

func (a *Agent) finish(ctx context.Context, question string, answer Answer, err error, started time.Time) {
	elapsed := time.Since(started)
	observability.ObserveAnswer(string(answer.Status), answer.Attempts, elapsed)
	if a.journal == nil {
		return
	}

	entry := journal.Entry{
		Question:    question,
		SQL:         answer.SQL,
		Status:      string(answer.Status),
		Attempts:    answer.Attempts,
		ArtifactKey: answer.ArtifactKey,
		Duration:    elapsed,
	}
	if answer.Table != nil {
		entry.RowCount = len(answer.Table.Rows)
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	} else if answer.Status == StatusFailed {
		entry.ErrorMessage = answer.Text
	}
	if recordErr := a.journal.Record(context.WithoutCancel(ctx), entry); recordErr != nil {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "record answer journal failed",
			observability.TraceAttr(ctx), slog.Any("error", recordErr))
	}
}
