package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assetwatch/syncagent"
)

func newSyncCmd() *cobra.Command {
	var modeFlag string
	cmd := &cobra.Command{
		Use:   "sync <hostname> [hostname...]",
		Short: "Sync one or more devices on demand",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := syncagent.ParseSyncMode(modeFlag)
			if err != nil {
				return err
			}
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			engine, store, err := buildEngine(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			var firstErr error
			for _, hostname := range args {
				result, err := engine.Sync(cmd.Context(), hostname, mode)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: error: %v\n", hostname, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				score := "-"
				if result.Score != nil {
					score = fmt.Sprintf("%d", *result.Score)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (score %s) %s\n",
					result.Hostname, result.Status, score, result.Message)
			}
			return firstErr
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "full", "sync mode: full or light")
	return cmd
}
