package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List inventory devices and their sync state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			devices, err := store.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HOSTNAME\tSTATUS\tSCORE\tMONITORED\tLAST SEEN\tNEXT RETRY\tERROR")
			for _, dev := range devices {
				score := "-"
				if dev.ComplianceScore != nil {
					score = fmt.Sprintf("%d", *dev.ComplianceScore)
				}
				lastSeen := "-"
				if dev.LastSeen != nil {
					lastSeen = dev.LastSeen.Format(time.RFC3339)
				}
				nextRetry := "-"
				if dev.NextRetryAt != nil {
					nextRetry = dev.NextRetryAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					dev.Hostname, dev.SyncStatus, score, dev.Monitoring, lastSeen, nextRetry, dev.SyncError)
			}
			return w.Flush()
		},
	}
}
