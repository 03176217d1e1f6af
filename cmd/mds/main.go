package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mds",
	Short: "MDS - Shared mobility provider data pipeline",
	Long: `MDS ingests trip data from shared mobility providers and moves it
through three stages: extract pulls trips from a provider's Mobility
Data Specification API into the object store, sync-db loads them into
the data warehouse with geographic enrichment, and sync-socrata
publishes the warehouse rows to the open data portal.

Work is organized in one-hour schedule blocks tracked in the warehouse;
each stage records its outcome on the block so interrupted runs resume
where they stopped.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
		metrics.SetVersion(Version)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"MDS pipeline version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON instead of console output")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM so a
// run can finish its current blocks and report what it completed.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
