// Package api exposes the question answering agent, the sandbox and the
// supporting read models over JSON.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medinsight/medinsight/internal/agent"
	"github.com/medinsight/medinsight/internal/auth"
	"github.com/medinsight/medinsight/internal/config"
	"github.com/medinsight/medinsight/internal/insights"
	"github.com/medinsight/medinsight/internal/journal"
	"github.com/medinsight/medinsight/internal/maintenance"
	"github.com/medinsight/medinsight/internal/nl2sql"
	"github.com/medinsight/medinsight/internal/observability"
	"github.com/medinsight/medinsight/internal/query"
	"github.com/medinsight/medinsight/internal/schema"
	"github.com/medinsight/medinsight/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

type Answerer interface {
	Answer(ctx context.Context, question string, history []nl2sql.Turn) (agent.Answer, error)
}

type ArtifactReader interface {
	Load(ctx context.Context, key string) (query.Table, error)
	List(ctx context.Context, day time.Time) ([]storage.ObjectInfo, error)
}

type MaintenanceRunner interface {
	RunRetentionOnce(ctx context.Context) (maintenance.RetentionSummary, error)
	RunIntegrityCheckOnce(ctx context.Context) (maintenance.IntegritySummary, error)
}

type OverviewProvider interface {
	Overview(ctx context.Context) (insights.Overview, error)
	ClassBreakdown(ctx context.Context, class string) (insights.ClassBreakdown, error)
	DistrictStats(ctx context.Context, name string) (query.Table, error)
	SeasonStats(ctx context.Context, season string) (query.Table, error)
}

// Dependencies left nil make their routes answer 501, except Answerer which
// answers 503 because a model key can be added without a rebuild.
type Dependencies struct {
	Logger           *slog.Logger
	Readiness        ReadinessCheck
	AuthMiddleware   func(http.Handler) http.Handler
	DependencyTimout time.Duration
	Answerer         Answerer
	QueryEngine      query.Engine
	Schema           *schema.Description
	Artifacts        ArtifactReader
	Journal          journal.Reader
	Overview         OverviewProvider
	Maintenance      MaintenanceRunner
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	analyst := auth.RequireRole(auth.RoleAnalyst)
	auditor := auth.RequireRole(auth.RoleAuditor)
	operator := auth.RequireRole(auth.RoleOperator)
	routes := []struct {
		pattern string
		guard   func(http.Handler) http.Handler
		handle  func(Dependencies, http.ResponseWriter, *http.Request)
	}{
		{"POST /v1/answer", analyst, handleAnswer},
		{"POST /v1/query", analyst, handleQuery},
		{"GET /v1/schema", analyst, handleSchema},
		{"GET /v1/overview", analyst, handleOverview},
		{"GET /v1/overview/classes/{class}", analyst, handleClassBreakdown},
		{"GET /v1/overview/districts", analyst, handleDistrictStats},
		{"GET /v1/overview/seasons", analyst, handleSeasonStats},
		{"GET /v1/artifacts", analyst, handleListArtifacts},
		{"GET /v1/artifacts/{key...}", analyst, handleGetArtifact},
		{"GET /v1/journal", auditor, handleJournal},
		{"POST /v1/maintenance/retention/run", operator, handleRetentionRun},
		{"POST /v1/maintenance/integrity/run", operator, handleIntegrityRun},
	}

	var protect func(http.Handler) http.Handler
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protect = func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
				})
			}
		} else {
			protect = deps.AuthMiddleware
		}
	}
	for _, route := range routes {
		handle := route.handle
		var handler http.Handler = route.guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		}))
		if protect != nil {
			handler = protect(handler)
		}
		mux.Handle(route.pattern, handler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
