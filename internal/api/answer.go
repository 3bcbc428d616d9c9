package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/medinsight/medinsight/internal/agent"
	"github.com/medinsight/medinsight/internal/nl2sql"
	"github.com/medinsight/medinsight/internal/query"
)

type answerRequest struct {
	Question string        `json:"question"`
	History  []nl2sql.Turn `json:"history"`
}

type answerResponse struct {
	Answer      string         `json:"answer"`
	SQL         string         `json:"sql,omitempty"`
	Status      agent.Status   `json:"status"`
	Attempts    int            `json:"attempts"`
	ArtifactKey string         `json:"artifact_key,omitempty"`
	Table       *tableResponse `json:"table,omitempty"`
}

type tableResponse struct {
	Columns    []query.Column `json:"columns"`
	Rows       [][]any        `json:"rows"`
	Capped     bool           `json:"capped"`
	DurationMs int64          `json:"duration_ms"`
}

func newTableResponse(table query.Table) tableResponse {
	rows := table.Rows
	if rows == nil {
		rows = [][]any{}
	}
	columns := table.Columns
	if columns == nil {
		columns = []query.Column{}
	}
	return tableResponse{
		Columns:    columns,
		Rows:       rows,
		Capped:     table.Capped,
		DurationMs: table.Duration.Milliseconds(),
	}
}

func newAnswerResponse(answer agent.Answer) answerResponse {
	response := answerResponse{
		Answer:      answer.Text,
		SQL:         answer.SQL,
		Status:      answer.Status,
		Attempts:    answer.Attempts,
		ArtifactKey: answer.ArtifactKey,
	}
	if answer.Table != nil {
		table := newTableResponse(*answer.Table)
		response.Table = &table
	}
	return response
}

func handleAnswer(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "MODEL_NOT_CONFIGURED", "answering requires a model api key", false, nil)
		return
	}

	var request answerRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid answer request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	answer, err := deps.Answerer.Answer(r.Context(), request.Question, request.History)
	if err != nil {
		partial := map[string]any{"details": err.Error(), "attempts": answer.Attempts}
		if answer.SQL != "" {
			partial["sql"] = answer.SQL
		}
		switch {
		case errors.Is(err, agent.ErrEmptyQuestion):
			writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		case errors.Is(err, agent.ErrSynthesis):
			writeError(r.Context(), w, http.StatusBadGateway, "SYNTHESIS_FAILED", "failed to synthesize sql", true, partial)
		case errors.Is(err, agent.ErrNarration):
			partial["artifact_key"] = answer.ArtifactKey
			if answer.Table != nil {
				partial["table"] = newTableResponse(*answer.Table)
			}
			writeError(r.Context(), w, http.StatusBadGateway, "NARRATION_FAILED", "failed to narrate the result", true, partial)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(r.Context(), w, http.StatusGatewayTimeout, "ANSWER_TIMEOUT", "answer did not finish in time", true, partial)
		case errors.Is(err, context.Canceled):
			writeError(r.Context(), w, http.StatusServiceUnavailable, "ANSWER_CANCELED", "request was canceled", true, partial)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "ANSWER_FAILED", "failed to answer question", false, partial)
		}
		return
	}

	writeJSON(w, http.StatusOK, newAnswerResponse(answer))
}
