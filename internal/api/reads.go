package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/medinsight/medinsight/internal/insights"
	"github.com/medinsight/medinsight/internal/journal"
	"github.com/medinsight/medinsight/internal/storage"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema description is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":     deps.Schema.Tables,
		"join_hints": deps.Schema.JoinHints,
		"text":       deps.Schema.Render(),
	})
}

func handleOverview(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Overview == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OVERVIEW_NOT_CONFIGURED", "overview is not configured", false, nil)
		return
	}
	overview, err := deps.Overview.Overview(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "OVERVIEW_FAILED", "failed to compute overview", true, map[string]any{"details": err.Error()})
		return
	}
	sections := map[string]tableResponse{}
	for name, table := range overview.Tables() {
		sections[name] = newTableResponse(table)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_patients":      overview.TotalPatients,
		"average_age":         overview.AverageAge,
		"top_district":        overview.TopDistrict,
		"total_prescriptions": overview.TotalPrescriptions,
		"sections":            sections,
		"errors":              overview.Errors,
	})
}

func handleClassBreakdown(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Overview == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OVERVIEW_NOT_CONFIGURED", "overview is not configured", false, nil)
		return
	}
	breakdown, err := deps.Overview.ClassBreakdown(r.Context(), r.PathValue("class"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func handleDistrictStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Overview == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OVERVIEW_NOT_CONFIGURED", "overview is not configured", false, nil)
		return
	}
	table, err := deps.Overview.DistrictStats(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTableResponse(table))
}

func handleSeasonStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Overview == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OVERVIEW_NOT_CONFIGURED", "overview is not configured", false, nil)
		return
	}
	table, err := deps.Overview.SeasonStats(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTableResponse(table))
}

func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, insights.ErrClassRequired):
		writeError(r.Context(), w, http.StatusBadRequest, "CLASS_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, insights.ErrUnknownClass), errors.Is(err, insights.ErrUnknownDistrict), errors.Is(err, insights.ErrUnknownSeason):
		writeError(r.Context(), w, http.StatusNotFound, "OVERVIEW_LOOKUP_NOT_FOUND", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusServiceUnavailable, "OVERVIEW_FAILED", "failed to compute overview", true, map[string]any{"details": err.Error()})
	}
}

// handleListArtifacts lists one UTC day of artifacts, today by default.
func handleListArtifacts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Artifacts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARTIFACTS_NOT_CONFIGURED", "artifact store is not configured", false, nil)
		return
	}
	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD", false, map[string]any{"details": err.Error()})
			return
		}
		day = parsed
	}
	objects, err := deps.Artifacts.List(r.Context(), day)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ARTIFACT_LIST_FAILED", "failed to list artifacts", true, map[string]any{"details": err.Error()})
		return
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(time.DateOnly), "artifacts": objects})
}

func handleGetArtifact(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Artifacts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARTIFACTS_NOT_CONFIGURED", "artifact store is not configured", false, nil)
		return
	}
	key := r.PathValue("key")
	if err := storage.ValidateAnswerKey(key); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARTIFACT_KEY", err.Error(), false, nil)
		return
	}
	table, err := deps.Artifacts.Load(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ARTIFACT_NOT_FOUND", "artifact was not found", false, map[string]any{"key": key})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "ARTIFACT_READ_FAILED", "failed to read artifact", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "table": newTableResponse(table)})
}

func handleJournal(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Journal == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "JOURNAL_DISABLED", journal.ErrDisabled.Error(), false, nil)
		return
	}
	limit := defaultJournalLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxJournalLimit {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500", false, nil)
			return
		}
		limit = parsed
	}
	entries, err := deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, journal.ErrDisabled) {
			writeError(r.Context(), w, http.StatusNotImplemented, "JOURNAL_DISABLED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "JOURNAL_READ_FAILED", "failed to read journal", true, map[string]any{"details": err.Error()})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
