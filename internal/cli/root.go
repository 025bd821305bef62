// Package cli holds the collector command tree.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"collector/internal/config"
)

// Version is stamped at build time with -ldflags "-X collector/internal/cli.Version=...".
var Version = "dev"

// cmdEnv is shared by every command: the bound configuration and the
// process streams.
type cmdEnv struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the collector command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	e := &cmdEnv{cfg: config.Default(), stdin: stdin, stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "collector",
		Short: "Collect documents from APIs, databases and files into database tables.",
		Long: `collector fetches JSON documents page by page from an HTTP API, a database
query or a local file, reshapes them with mapping rules, renders statement
templates against the result and executes the statements on a destination
database. Every execution is recorded in a run log.

Settings are read from flags, COLLECTOR_* environment variables and the YAML
file named by --config, in that priority order.
`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Apply(viper.New(), cmd.Flags()); err != nil {
				return err
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}
			slog.SetDefault(e.cfg.NewLogger(e.stderr))
			return nil
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "YAML configuration file to read from.")
	e.cfg.Flags(rc.PersistentFlags())

	rc.AddCommand(newRunCommand(e))
	rc.AddCommand(newRunsCommand(e))
	rc.AddCommand(newConnectionsCommand(e))
	rc.AddCommand(newRenderCommand(e))
	rc.AddCommand(newResolveCommand(e))
	rc.AddCommand(newConfigCommand(e))
	rc.AddCommand(newServeCommand(e))
	rc.AddCommand(newMCPCommand(e))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}
