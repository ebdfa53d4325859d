package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loremaster/internal/config"
	"loremaster/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session API server for a browser front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.HTTPPort = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sess, err := buildSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.close()

			return httpapi.Start(ctx, httpapi.StartOpts{
				Orchestrator: sess.orch,
				Port:         cfg.HTTPPort,
				Out:          cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides HTTP_PORT)")
	return cmd
}
