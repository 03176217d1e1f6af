package main

import (
	"github.com/spf13/cobra"
)

var syncSocrataCmd = &cobra.Command{
	Use:   "sync-socrata",
	Short: "Publish warehouse trips to the open data portal",
	Long: `Sync-socrata fetches the warehouse trips of every eligible schedule
block, flattens them into the open data schema and upserts them into
the Socrata dataset configured in the settings document.

Examples:
  # Publish the hour ending 2020-01-01 01:00 local time
  mds sync-socrata --provider veoride --time-max 2020-1-1-1

  # Republish a day regardless of block status
  mds sync-socrata --provider veoride --time-max 2020-1-2-0 --interval 24 --force`,
	RunE: runSyncSocrata,
}

func init() {
	stageFlags(syncSocrataCmd)

	rootCmd.AddCommand(syncSocrataCmd)
}

func runSyncSocrata(cmd *cobra.Command, args []string) error {
	opts := stageOptions(cmd)
	opts.NoExtract = true
	opts.NoSyncDB = true
	return runPipeline(opts)
}
