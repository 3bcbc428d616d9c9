// Package app builds the answering components from configuration. The API
// server and the local CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/medinsight/medinsight/internal/agent"
	"github.com/medinsight/medinsight/internal/artifact"
	"github.com/medinsight/medinsight/internal/config"
	"github.com/medinsight/medinsight/internal/insights"
	"github.com/medinsight/medinsight/internal/journal"
	journalpostgres "github.com/medinsight/medinsight/internal/journal/postgres"
	"github.com/medinsight/medinsight/internal/llm"
	"github.com/medinsight/medinsight/internal/maintenance"
	"github.com/medinsight/medinsight/internal/nl2sql"
	"github.com/medinsight/medinsight/internal/prompts"
	"github.com/medinsight/medinsight/internal/query/duckdb"
	"github.com/medinsight/medinsight/internal/schema"
	"github.com/medinsight/medinsight/internal/storage"
	localstore "github.com/medinsight/medinsight/internal/storage/local"
	s3store "github.com/medinsight/medinsight/internal/storage/s3"
)

// ErrModelNotConfigured is returned by Answerer when no model API key is set.
var ErrModelNotConfigured = errors.New("model api key is not configured")

// App holds the long-lived components. Archive, Maintenance and Journal are
// nil when their backends are disabled; Agent is nil without a model API key.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Engine      *duckdb.Engine
	Catalog     *prompts.Catalog
	Schema      schema.Description
	Agent       *agent.Agent
	Archive     *artifact.Archive
	Maintenance *maintenance.Service
	Journal     journal.Journal
	Insights    *insights.Service

	journalHealth func(context.Context) error
	closers       []func() error
}

// Options replaces components that would otherwise be built from config.
type Options struct {
	Completer llm.Completer
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	return NewWithOptions(ctx, cfg, logger, Options{})
}

func NewWithOptions(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	catalog, err := loadCatalog(cfg.Agent.PromptCatalog)
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog

	a.Engine = duckdb.NewEngine(cfg.Agent.DBPath, cfg.Agent.RowCap, cfg.Agent.ExecTimeout)
	a.Schema, err = describe(ctx, a.Engine, catalog.SchemaHints())
	if err != nil {
		return nil, err
	}

	a.Insights, err = insights.NewService(a.Engine, logger)
	if err != nil {
		return nil, err
	}

	if err := a.openArchive(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openJournal(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	completer := opts.Completer
	if completer == nil && strings.TrimSpace(cfg.AI.APIKey) != "" {
		completer, err = llm.NewClient(llm.Config{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
			Retries:     cfg.AI.TransportRetries,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build model client: %w", err)
		}
	}
	if completer == nil {
		logger.Warn("model api key is not configured, answering is disabled")
		return a, nil
	}
	if err := a.buildAgent(completer); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Answerer returns the agent or ErrModelNotConfigured.
func (a *App) Answerer() (*agent.Agent, error) {
	if a.Agent == nil {
		return nil, ErrModelNotConfigured
	}
	return a.Agent, nil
}

// Ready checks that the database opens read-only and the journal answers.
func (a *App) Ready(ctx context.Context) error {
	if err := a.Engine.Ping(ctx); err != nil {
		return err
	}
	if a.journalHealth != nil {
		if err := a.journalHealth(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildAgent(completer llm.Completer) error {
	synthesizer, err := nl2sql.NewChatSynthesizer(completer, a.Catalog)
	if err != nil {
		return err
	}
	narrator, err := agent.NewNarrator(completer, a.Catalog, agent.NarratorConfig{
		PreviewRows: a.Config.Agent.PreviewRows,
		Language:    a.Config.Agent.Language,
	})
	if err != nil {
		return err
	}
	deps := agent.Dependencies{
		Synthesizer: synthesizer,
		Engine:      a.Engine,
		Narrator:    narrator,
		Catalog:     a.Catalog,
		Schema:      a.Schema,
		Logger:      a.Logger,
	}
	// Typed nils would defeat the agent's nil checks.
	if a.Archive != nil {
		deps.Artifacts = a.Archive
	}
	if a.Journal != nil {
		deps.Journal = a.Journal
	}
	a.Agent, err = agent.New(agent.Config{
		MaxRetries:   a.Config.Agent.MaxRetries,
		HistoryTurns: a.Config.Agent.HistoryTurns,
	}, deps)
	return err
}

func (a *App) openArchive(ctx context.Context) error {
	var store storage.ObjectStore
	cfg := a.Config.Artifacts
	switch cfg.Backend {
	case config.ArtifactBackendNone, "":
		return nil
	case config.ArtifactBackendLocal:
		local, err := localstore.New(cfg.Dir)
		if err != nil {
			return fmt.Errorf("open artifact directory: %w", err)
		}
		store = local
	case config.ArtifactBackendS3:
		remote, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Endpoint,
			Region:           cfg.Region,
			Bucket:           cfg.Bucket,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			UseSSL:           cfg.UseSSL,
			Prefix:           cfg.Prefix,
			AutoCreateBucket: cfg.AutoCreateBucket,
		})
		if err != nil {
			return fmt.Errorf("open artifact bucket: %w", err)
		}
		store = remote
	default:
		return fmt.Errorf("invalid artifact backend %q", cfg.Backend)
	}
	archive, err := artifact.NewArchive(store)
	if err != nil {
		return err
	}
	a.Archive = archive
	a.Maintenance = &maintenance.Service{
		Archive: archive,
		Config: maintenance.Config{
			RetentionInterval: a.Config.Maintenance.RetentionInterval,
			RetentionAge:      a.Config.Maintenance.RetentionAge,
			IntegrityInterval: a.Config.Maintenance.IntegrityInterval,
			IntegrityDays:     a.Config.Maintenance.IntegrityDays,
		},
		Logger: a.Logger.With(slog.String("component", "maintenance")),
	}
	return nil
}

func (a *App) openJournal(ctx context.Context) error {
	cfg := a.Config.Journal
	if !cfg.Enabled {
		return nil
	}
	db, err := journalpostgres.Open(ctx, journalpostgres.DBConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	repo := journalpostgres.NewRepository(db)
	a.Journal = repo
	a.journalHealth = repo.HealthCheck
	return nil
}

func loadCatalog(path string) (*prompts.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return prompts.Default()
	}
	return prompts.Load(path)
}

func describe(ctx context.Context, engine *duckdb.Engine, hints schema.Hints) (schema.Description, error) {
	db, err := engine.Open(ctx)
	if err != nil {
		return schema.Description{}, err
	}
	defer func() { _ = db.Close() }()
	description, err := schema.Describe(ctx, db, hints)
	if err != nil {
		return schema.Description{}, fmt.Errorf("describe schema: %w", err)
	}
	return description, nil
}
