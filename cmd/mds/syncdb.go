package main

import (
	"github.com/spf13/cobra"
)

var syncDBCmd = &cobra.Command{
	Use:   "sync-db",
	Short: "Load extracted trips into the data warehouse",
	Long: `Sync-db reads the extracted payload of every eligible schedule block
from the object store, validates and geographically enriches each trip,
and upserts the result into the data warehouse.

Examples:
  # Load the hour ending 2020-01-01 01:00 local time
  mds sync-db --provider veoride --time-max 2020-1-1-1

  # Reload a day regardless of block status
  mds sync-db --provider veoride --time-max 2020-1-2-0 --interval 24 --force`,
	RunE: runSyncDB,
}

func init() {
	stageFlags(syncDBCmd)

	rootCmd.AddCommand(syncDBCmd)
}

func runSyncDB(cmd *cobra.Command, args []string) error {
	opts := stageOptions(cmd)
	opts.NoExtract = true
	opts.NoSyncSocrata = true
	return runPipeline(opts)
}
