// Package medinsight is the local command line: it builds the agent in
// process from the environment and talks to the database directly.
package medinsight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/medinsight/medinsight/internal/app"
	"github.com/medinsight/medinsight/internal/config"
	"github.com/medinsight/medinsight/internal/observability"
)

const serviceName = "medinsight-cli"

type AppFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error)

type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Lookup config.LookupFunc
	NewApp AppFactory
}

type commandEnv struct {
	opts    Options
	verbose bool
}

func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.NewApp == nil {
		opts.NewApp = app.New
	}
	rt := &commandEnv{opts: opts}

	root := &cobra.Command{
		Use:   "medinsight",
		Short: "Ask questions about the prescriptions database",
		Long: `medinsight answers natural-language questions about patients, diagnoses,
drugs and prescriptions by generating DuckDB SQL, running it read-only and
summarizing the result.

Configuration comes from MEDINSIGHT_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log agent attempts to stderr")

	root.AddCommand(
		newAskCommand(rt),
		newChatCommand(rt),
		newSchemaCommand(rt),
		newSQLCommand(rt),
		newOverviewCommand(rt),
		newArtifactsCommand(rt),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// open loads configuration and builds the application. Callers must Close it.
func (rt *commandEnv) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(serviceName, rt.opts.Lookup)
	if err != nil {
		return nil, err
	}
	cfg.Observability.LogJSON = false
	cfg.Observability.LogLevel = slog.LevelWarn
	if rt.verbose {
		cfg.Observability.LogLevel = slog.LevelDebug
	}
	logger := observability.NewLogger(cfg, rt.opts.Stderr)
	return rt.opts.NewApp(ctx, cfg, logger)
}

func (rt *commandEnv) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := rt.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}
