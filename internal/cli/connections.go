package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"collector/internal/service"
)

// ── connections ────────────────────────────────────────────

func newConnectionsCommand(e *cmdEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage stored database connections.",
		Long: `Stored connections are referenced from runs by id or name instead of a DSN.
Passwords are kept out of the metadata database, in secrets.yaml next to it.
A password may also be supplied as COLLECTOR_SECRET_DB_<NAME>.`,
	}
	cmd.AddCommand(newConnectionsAddCommand(e))
	cmd.AddCommand(newConnectionsListCommand(e))
	cmd.AddCommand(newConnectionsTestCommand(e))
	cmd.AddCommand(newConnectionsQueryCommand(e))
	cmd.AddCommand(newConnectionsDeleteCommand(e))
	return cmd
}

func newConnectionsAddCommand(e *cmdEnv) *cobra.Command {
	var (
		in            service.ConnectionInput
		file          string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "add [NAME]",
		Short: "Store a database connection.",
		Long: `Store a database connection, from flags or from a YAML file:

  name: warehouse
  driver: postgres
  host: db.internal
  port: 5432
  database: analytics
  username: collector
  sslMode: require`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read connection file: %w", err)
				}
				if err := yaml.Unmarshal(data, &in); err != nil {
					return fmt.Errorf("decode connection file: %w", err)
				}
			}
			if len(args) == 1 {
				in.Name = args[0]
			}
			if passwordStdin {
				line, err := bufio.NewReader(e.stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password from stdin: %w", err)
				}
				in.Password = strings.TrimRight(line, "\r\n")
			}
			return e.withApp(func(a *app) error {
				conn, err := a.connections.CreateConnection(in)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.stdout, "added %s (%s)\n", conn.Name, conn.ID)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "YAML file describing the connection.")
	flags.StringVar(&in.Driver, "driver", "", "Driver: postgres, mysql, sqlite or mongodb.")
	flags.StringVar(&in.Host, "host", "", "Host name, sqlite file path or mongodb:// URI.")
	flags.IntVar(&in.Port, "port", 0, "Port (0 for the driver default).")
	flags.StringVar(&in.Database, "database", "", "Database name.")
	flags.StringVar(&in.Username, "username", "", "User name.")
	flags.StringVar(&in.SSLMode, "ssl-mode", "", "SSL mode (postgres).")
	flags.StringVar(&in.ExtraJSON, "extra-json", "", "Driver-specific options as a JSON object.")
	flags.BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin.")
	return cmd
}

func newConnectionsListCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored connections.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				conns, err := a.connections.ListConnections()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tDRIVER\tHOST\tDATABASE")
				for _, c := range conns {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Driver, c.Host, c.Database)
				}
				return w.Flush()
			})
		},
	}
}

func newConnectionsTestCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "test CONNECTION|DSN",
		Short: "Open and ping a database.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				if err := a.connections.TestConnection(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(e.stdout, "ok")
				return nil
			})
		},
	}
}

func newConnectionsQueryCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "query CONNECTION|DSN QUERY",
		Short: "Run a read query and print the rows as JSON lines.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				rows, err := a.connections.Query(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Fprintln(e.stdout, r.String())
				}
				return nil
			})
		},
	}
}

func newConnectionsDeleteCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CONNECTION",
		Short: "Delete a stored connection and its password.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				return a.connections.DeleteConnection(args[0])
			})
		},
	}
}
