package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jgbdesk/factorcurve/internal/app"
	"github.com/jgbdesk/factorcurve/internal/config"
	httpserver "github.com/jgbdesk/factorcurve/internal/interfaces/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the factor analysis HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			if application.Scheduler != nil {
				if err := application.Scheduler.Start(); err != nil {
					return err
				}
				defer application.Scheduler.Stop()
			}

			handlers := httpserver.NewHandlers(application.Analyzer, application.Store)
			server := httpserver.NewServer(cfg.Server, handlers)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("version", version).Msg("factorcurve starting")
			return server.Start(ctx)
		},
	}
}
