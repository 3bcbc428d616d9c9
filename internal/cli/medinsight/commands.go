package medinsight

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/medinsight/medinsight/internal/agent"
	"github.com/medinsight/medinsight/internal/app"
	"github.com/medinsight/medinsight/internal/cli/tableview"
	"github.com/medinsight/medinsight/internal/nl2sql"
	"github.com/medinsight/medinsight/internal/query"
)

var errArchiveDisabled = errors.New("artifact backend is disabled (MEDINSIGHT_ARTIFACTS_BACKEND=none)")

type answerView struct {
	showSQL   bool
	showTable bool
}

func bindAnswerView(cmd *cobra.Command) *answerView {
	v := &answerView{}
	cmd.Flags().BoolVar(&v.showSQL, "show-sql", false, "Print the SQL of the last attempt")
	cmd.Flags().BoolVar(&v.showTable, "show-table", true, "Print the result table under the answer")
	return v
}

func (v *answerView) write(w io.Writer, answer agent.Answer) error {
	if _, err := fmt.Fprintln(w, answer.Text); err != nil {
		return err
	}
	if v.showSQL && answer.SQL != "" {
		if _, err := fmt.Fprintf(w, "\nSQL (attempt %d):\n%s\n", answer.Attempts, answer.SQL); err != nil {
			return err
		}
	}
	if v.showTable && answer.Table != nil && !answer.Table.Empty() {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		return tableview.Render(w, *answer.Table)
	}
	return nil
}

func newAskCommand(env *commandEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Example: `  medinsight ask "Топ-5 самых дорогих препаратов"
  medinsight ask --show-sql "Сколько пациентов с гипертонией?"`,
		Args: cobra.MinimumNArgs(1),
	}
	view := bindAnswerView(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
			answerer, err := a.Answerer()
			if err != nil {
				return err
			}
			answer, err := answerer.Answer(ctx, question, nil)
			if err != nil {
				return err
			}
			return view.write(cmd.OutOrStdout(), answer)
		})
	}
	return cmd
}

func newChatCommand(env *commandEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask follow-up questions in one conversation",
		Long: `chat reads one question per line from stdin and keeps the conversation so
follow-up questions can refer to earlier answers. Type /reset to forget the
conversation and /exit to quit.`,
		Args: cobra.NoArgs,
	}
	view := bindAnswerView(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
			answerer, err := a.Answerer()
			if err != nil {
				return err
			}
			return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), answerer, view)
		})
	}
	return cmd
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, answerer *agent.Agent, view *answerView) error {
	var history []nl2sql.Turn
	scanner := bufio.NewScanner(in)
	for {
		if _, err := fmt.Fprint(out, "> "); err != nil {
			return err
		}
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			history = nil
			_, _ = fmt.Fprintln(out, "conversation cleared")
			continue
		}

		answer, err := answerer.Answer(ctx, line, history)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, pterm.Error.Sprint(err.Error()))
			continue
		}
		if err := view.write(out, answer); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out)
		history = append(history,
			nl2sql.Turn{Role: nl2sql.RoleUser, Text: line},
			nl2sql.Turn{Role: nl2sql.RoleAssistant, Text: answer.Text},
		)
	}
}

func newSchemaCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description given to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withApp(cmd, func(_ context.Context, a *app.App) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), a.Schema.Render())
				return err
			})
		},
	}
}

func newSQLCommand(env *commandEnv) *cobra.Command {
	var rowLimit int
	cmd := &cobra.Command{
		Use:   "sql <statement>",
		Short: "Run one read-only statement in the sandbox",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement := strings.Join(args, " ")
			return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
				table, err := a.Engine.Execute(ctx, query.Request{SQL: statement, RowLimit: rowLimit})
				if err != nil {
					return err
				}
				if table.Empty() {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "(no rows)")
					return err
				}
				return tableview.Render(cmd.OutOrStdout(), table)
			})
		},
	}
	cmd.Flags().IntVar(&rowLimit, "limit", 0, "Row limit below the configured cap")
	return cmd
}

func newOverviewCommand(env *commandEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print the dashboard figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
				overview, err := a.Insights.Overview(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Patients: %d\nAverage age: %.1f\nTop district: %s\nPrescriptions: %d\n",
					overview.TotalPatients, overview.AverageAge, overview.TopDistrict, overview.TotalPrescriptions)

				tables := overview.Tables()
				names := make([]string, 0, len(tables))
				for name := range tables {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					_, _ = fmt.Fprintf(out, "\n%s\n", name)
					if message, failed := overview.Errors[name]; failed {
						_, _ = fmt.Fprintln(out, pterm.Warning.Sprint(message))
						continue
					}
					if err := tableview.Render(out, tables[name]); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "class <disease class>",
			Short: "Diagnosis frequency inside one disease class",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
					breakdown, err := a.Insights.ClassBreakdown(ctx, strings.Join(args, " "))
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					_, _ = fmt.Fprintf(out, "%s: %d prescriptions\n", breakdown.Class, breakdown.Total)
					for _, share := range breakdown.Diagnoses {
						_, _ = fmt.Fprintf(out, "  %6.2f%%  %5d  %s\n", share.Share, share.Cases, share.Diagnosis)
					}
					return nil
				})
			},
		},
		newLookupCommand(env, "districts [name]", "Patients, prescriptions and top class per district", func(ctx context.Context, a *app.App, name string) (query.Table, error) {
			return a.Insights.DistrictStats(ctx, name)
		}),
		newLookupCommand(env, "seasons [season]", "Prescriptions per season", func(ctx context.Context, a *app.App, name string) (query.Table, error) {
			return a.Insights.SeasonStats(ctx, name)
		}),
	)
	return cmd
}

func newLookupCommand(env *commandEnv, use, short string, lookup func(context.Context, *app.App, string) (query.Table, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
				table, err := lookup(ctx, a, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if table.Empty() {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "(no rows)")
					return err
				}
				return tableview.Render(cmd.OutOrStdout(), table)
			})
		},
	}
}

func newArtifactsCommand(env *commandEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect stored result tables",
	}

	var date string
	list := &cobra.Command{
		Use:   "list",
		Short: "List artifacts written on one UTC day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now().UTC()
			if strings.TrimSpace(date) != "" {
				parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				day = parsed
			}
			return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Archive == nil {
					return errArchiveDisabled
				}
				objects, err := a.Archive.List(ctx, day)
				if err != nil {
					return err
				}
				data := pterm.TableData{{"key", "size", "modified"}}
				for _, object := range objects {
					data = append(data, []string{object.Key, fmt.Sprint(object.Size), object.LastModified.UTC().Format(time.DateTime)})
				}
				rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
				return err
			})
		},
	}
	list.Flags().StringVar(&date, "date", "", "Day to list (YYYY-MM-DD, default today)")

	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Print a stored result table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Archive == nil {
					return errArchiveDisabled
				}
				table, err := a.Archive.Load(ctx, args[0])
				if err != nil {
					return err
				}
				return tableview.Render(cmd.OutOrStdout(), table)
			})
		},
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete artifacts older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return env.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Archive == nil {
					return errArchiveDisabled
				}
				removed, err := a.Archive.Prune(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d artifacts\n", removed)
				return err
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age after which artifacts are deleted")

	cmd.AddCommand(list, show, prune)
	return cmd
}
