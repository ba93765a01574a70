package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/obscan/internal/application"
	"github.com/sawpanic/obscan/internal/config"
	httpapi "github.com/sawpanic/obscan/internal/interfaces/http"
	"github.com/sawpanic/obscan/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /health, /metrics and on-demand scans over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			m := metrics.NewRegistry()
			runner, cleanup, err := application.Wire(cmd.Context(), cfg, m, application.WireOptions{})
			if err != nil {
				return err
			}
			defer cleanup()

			sc := httpapi.DefaultServerConfig()
			sc.Addr = cfg.Server.Addr
			srv := httpapi.NewServer(sc, runner, m)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (OBSCAN_ADDR)")
	config.BindFlags(cmd.Flags())
	return cmd
}
