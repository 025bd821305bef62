package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"collector/internal/etl"
)

// ── run <file> ─────────────────────────────────────────────

func newRunCommand(e *cmdEnv) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a run definition file once.",
		Long: `Execute the run defined in a YAML or JSON file without storing it.
The execution is still recorded in a run log.

With --dry-run the statements are rendered and logged but not executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := etl.LoadRun(args[0])
			if err != nil {
				return err
			}
			run.ID = ""

			a, err := e.open(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.runs.Execute(cmd.Context(), run, collectOptions(dryRun)...)
			if res != nil {
				printResult(e.stdout, run.Name, res)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render and log statements without executing them.")
	return cmd
}

func collectOptions(dryRun bool) []etl.CollectOption {
	if dryRun {
		return []etl.CollectOption{etl.DryRun()}
	}
	return nil
}

func printResult(w io.Writer, name string, res *etl.Result) {
	fmt.Fprintf(w, "%s: %s pages=%d rows=%d flushes=%d failed=%d retries=%d duration=%s log=%s\n",
		name, res.Status, res.Pages, res.Rows, res.Flushes, res.FailedStatements, res.Retries,
		res.Duration.Round(time.Millisecond), res.LogID)
}

// ── runs ───────────────────────────────────────────────────

func newRunsCommand(e *cmdEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage stored runs.",
	}
	cmd.AddCommand(newRunsImportCommand(e))
	cmd.AddCommand(newRunsListCommand(e))
	cmd.AddCommand(newRunsExecCommand(e))
	cmd.AddCommand(newRunsPreviewCommand(e))
	cmd.AddCommand(newRunsLogsCommand(e))
	cmd.AddCommand(newRunsDeleteCommand(e))
	return cmd
}

// withApp opens the app for the duration of fn.
func (e *cmdEnv) withApp(fn func(a *app) error) error {
	a, err := e.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newRunsImportCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Store run definition files, replacing runs with the same name.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				for _, path := range args {
					run, err := a.runs.ImportRun(cmd.Context(), path)
					if err != nil {
						return fmt.Errorf("import %s: %w", path, err)
					}
					fmt.Fprintf(e.stdout, "imported %s (%s)\n", run.Name, run.ID)
				}
				return nil
			})
		},
	}
}

func newRunsListCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				runs, err := a.runs.ListRuns()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSOURCE\tTRIGGER\tENABLED\tLAST STATUS\tLAST RUN")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
						r.ID, r.Name, r.SourceType, trigger(r), r.Enabled, r.LastStatus, formatTime(r.LastRunAt))
				}
				return w.Flush()
			})
		},
	}
}

func trigger(r etl.Run) string {
	if r.TriggerConfig == "" {
		return r.TriggerType
	}
	return r.TriggerType + " " + r.TriggerConfig
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func newRunsExecCommand(e *cmdEnv) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "exec RUN",
		Short: "Execute a stored run now.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				res, err := a.runs.RunNow(cmd.Context(), args[0], collectOptions(dryRun)...)
				if res != nil {
					printResult(e.stdout, args[0], res)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render and log statements without executing them.")
	return cmd
}

func newRunsPreviewCommand(e *cmdEnv) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "preview RUN",
		Short: "Fetch, transform and render one page without executing anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				p, err := a.runs.Preview(cmd.Context(), args[0], page)
				if err != nil {
					return err
				}
				return writeJSON(e.stdout, p)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page counter value (0 selects the first page).")
	return cmd
}

func newRunsLogsCommand(e *cmdEnv) *cobra.Command {
	var (
		limit int
		full  bool
	)
	cmd := &cobra.Command{
		Use:   "logs RUN",
		Short: "List the latest run logs of a run, newest first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				logs, err := a.runs.ListRunLogs(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if full {
					for _, l := range logs {
						fmt.Fprintf(e.stdout, "── %s %s %s\n%s\n", l.ID, l.Status, formatTime(l.StartedAt), l.Text)
					}
					return nil
				}
				w := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tFINISHED")
				for _, l := range logs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, l.Status, formatTime(l.StartedAt), formatTime(l.FinishedAt))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of logs.")
	cmd.Flags().BoolVar(&full, "full", false, "Print the text of every log.")
	return cmd
}

func newRunsDeleteCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN",
		Short: "Delete a stored run and its logs.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				return a.runs.DeleteRun(cmd.Context(), args[0])
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

