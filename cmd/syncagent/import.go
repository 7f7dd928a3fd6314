package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/assetwatch/syncagent"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Bulk import device rows into the inventory",
		Long: `Reads a CSV with columns Hostname, Ownership, Business Impact, Criticality
and creates one not_synced device per valid row. Invalid rows are reported
individually and never abort the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, "open import file %s failed", args[0])
			}
			defer file.Close()

			rows, err := syncagent.ReadImportRows(file)
			if err != nil {
				return err
			}
			result, err := syncagent.NewImporter(store).Import(cmd.Context(), rows)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created: %d\n", result.CreatedCount)
			for _, rowErr := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "row %d: %s\n", rowErr.Row, rowErr.Reason)
			}
			if len(result.Errors) > 0 {
				log.Warn().Int("errors", len(result.Errors)).Msg("import finished with row errors")
			}
			return nil
		},
	}
}
