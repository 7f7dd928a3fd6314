package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/assetwatch/syncagent/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "syncagent",
	Short: "Device security synchronization engine",
	Long: `syncagent reconciles the local IT-asset inventory against the external
endpoint-security authority: it pulls per-device agent state through a
rate-limited client, derives a compliance score, and schedules retries for
devices whose agent is temporarily unreachable.`,
}

var (
	rootConfigPath string
	rootDBPath     string
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "path to YAML settings file")
	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "", "inventory database path, overrides SYNCAGENT_DB_PATH")
	rootCmd.AddCommand(
		newServeCmd(),
		newImportCmd(),
		newSyncCmd(),
		newDevicesCmd(),
		newLogCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("syncagent command failed")
	}
}
