package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/internal/observability"
	"github.com/xkilldash9x/scalewob/internal/server"
)

func newServeCmd(d *deps) *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves one session over HTTP until interrupted",
		Long: `Creates a session for the environment and exposes it on an HTTP control
surface. The session is not started until a client posts /session/start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if err := applySessionFlags(cmd, cfg); err != nil {
				return err
			}
			components, err := initializeSession(ctx, d, cfg, logger)
			if err != nil {
				components.Shutdown()
				return fmt.Errorf("failed to initialize session: %w", err)
			}
			defer components.Shutdown()

			sc := cfg.Server()
			if cmd.Flags().Changed("addr") {
				sc.Addr = addr
			}
			var gatherer prometheus.Gatherer
			if components.Metrics != nil {
				gatherer = components.Metrics
			}
			srv := server.New(components.Session, sc, gatherer, logger)

			logger.Info("Serving session",
				zap.String("session_id", components.Session.ID()),
				zap.String("env_id", components.Session.Options().EnvID),
				zap.String("addr", sc.Addr))
			return srv.ListenAndServe(ctx)
		},
	}

	addSessionFlags(serveCmd)
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address (overrides server.addr)")
	return serveCmd
}
