package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine with its background schedulers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			engine, store, err := buildEngine(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().
				Str("db", settings.DatabasePath).
				Str("api", settings.APIBaseURL).
				Int("rate_limit_per_minute", settings.RateLimitPerMinute).
				Msg("syncagent serving")
			return engine.Start(ctx)
		},
	}
}
