// Package serve implements the serve command.
package serve

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/server"
)

const shutdownTimeout = 30 * time.Second

// NewCommand creates the serve command.
func NewCommand(g *cli.Globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fix lifecycle over HTTP",
		Long: `Expose fetch, analysis, candidate generation, application and validation
as a JSON API. Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.App()
			if err != nil {
				return err
			}
			cfg := a.Config.Server
			if addr != "" {
				cfg.Addr = addr
			}
			srv := server.NewWithLogger(cfg, a.Coordinator, a.Logger)
			srv.AddHealthCheck("llm", a.LLM.HealthCheck)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}
