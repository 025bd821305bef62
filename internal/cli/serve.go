package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	mcpserver "collector/internal/mcp"
)

// shutdownGrace bounds how long serve waits for executing runs on exit.
const shutdownGrace = 30 * time.Second

func newServeCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run schedule and file_watch triggers and serve /metrics.",
		Long: `serve keeps the enabled schedule and file_watch runs armed until interrupted,
and exposes Prometheus metrics on --metrics-addr (empty disables it).

The first SIGINT or SIGTERM stops the triggers and waits for executing runs;
a second one exits immediately.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var metrics *http.Server
			if addr := e.cfg.MetricsAddr; addr != "" {
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("metrics listener: %w", err)
				}
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("serve: metrics", "err", err)
					}
				}()
				a.logger.Info("serve: metrics listening", "addr", ln.Addr().String())
			}

			scheduled, watched := a.runs.RestartTriggers(ctx)
			a.logger.Info("serve: triggers armed", "scheduled", scheduled, "watched", watched)

			c := make(chan os.Signal, 2)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(c)
			select {
			case sig := <-c:
				a.logger.Info("serve: shutting down", "signal", sig.String())
				go func() { <-c; os.Exit(1) }()
			case <-ctx.Done():
			}

			a.runs.Stop()
			waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer waitCancel()
			if err := a.runs.WaitRunning(waitCtx); err != nil {
				a.logger.Warn("serve: runs still executing at shutdown", "runs", a.runs.Running())
			}
			if metrics != nil {
				return metrics.Shutdown(waitCtx)
			}
			return nil
		},
	}
}

func newMCPCommand(e *cmdEnv) *cobra.Command {
	var triggers bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the collector as an MCP server on stdin/stdout.",
		Long: `mcp exposes runs, run logs, previews and the document tools to an MCP client
over stdio. Logs go to stderr. Run events are sent to the client as
notifications/collector/<event>.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			notifier := &mcpserver.Notifier{}
			a, err := e.open(notifier)
			if err != nil {
				return err
			}
			defer a.Close()

			if triggers {
				scheduled, watched := a.runs.RestartTriggers(cmd.Context())
				a.logger.Info("mcp: triggers armed", "scheduled", scheduled, "watched", watched)
			}

			srv := mcpserver.New(mcpserver.Deps{
				Runs:        a.runs,
				Connections: a.connections,
				Notifier:    notifier,
				Logger:      a.logger,
				Version:     Version,
			})
			return srv.ServeStdio()
		},
	}
	cmd.Flags().BoolVar(&triggers, "triggers", false, "Also arm schedule and file_watch triggers.")
	return cmd
}
