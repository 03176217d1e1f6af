package main

import (
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract provider trips into the object store",
	Long: `Extract pulls trip data from a provider's MDS API for every pending
schedule block in the window and stores the raw payload, encrypted, in
the object store.

Examples:
  # Extract the hour ending 2020-01-01 01:00 local time
  mds extract --provider veoride --time-max 2020-1-1-1

  # Re-extract a six hour window, ignoring block status
  mds extract --provider veoride --time-max 2020-1-1-6 --interval 6 --force

  # Also write the extracted trips to a local file
  mds extract --provider veoride --time-max 2020-1-1-1 --file trips.json`,
	RunE: runExtract,
}

func init() {
	stageFlags(extractCmd)
	extractCmd.Flags().String("file", "", "Also write the extracted trips to this local JSON file")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	opts := stageOptions(cmd)
	opts.OutputFile, _ = cmd.Flags().GetString("file")
	opts.NoSyncDB = true
	opts.NoSyncSocrata = true
	return runPipeline(opts)
}
