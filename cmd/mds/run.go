package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atd-dts/mds-ingest/pkg/metrics"
	"github.com/atd-dts/mds-ingest/pkg/pipeline"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// stageFlags registers the flag set shared by every stage command.
func stageFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "The provider's name (required)")
	cmd.Flags().String("time-max", "", "The maximum time where the trip ended, format 'yyyy-mm-dd-hh' (required)")
	cmd.Flags().String("time-min", "", "The minimum time where the trip ended, format 'yyyy-mm-dd-hh'")
	cmd.Flags().Int("interval", 1, "Window length in hours, relative to time-max")
	cmd.Flags().Bool("force", false, "Run every stage regardless of block status")
	cmd.Flags().Bool("dry-run", false, "List the selected blocks without executing any stage")
	cmd.Flags().Int("threads", 0, "Blocks processed in parallel (default ATD_MDS_MAX_THREADS, then 1)")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("time-max")
}

// stageOptions reads the shared flag set into run options.
func stageOptions(cmd *cobra.Command) pipeline.Options {
	provider, _ := cmd.Flags().GetString("provider")
	timeMax, _ := cmd.Flags().GetString("time-max")
	timeMin, _ := cmd.Flags().GetString("time-min")
	interval, _ := cmd.Flags().GetInt("interval")
	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	threads, _ := cmd.Flags().GetInt("threads")

	return pipeline.Options{
		Provider:   provider,
		TimeMax:    timeMax,
		TimeMin:    timeMin,
		Interval:   interval,
		Force:      force,
		DryRun:     dryRun,
		MaxThreads: threads,
	}
}

// runPipeline bootstraps the application, executes one orchestrator run
// and reports the outcome. Block failures become a non-zero exit so a
// scheduler sees them.
func runPipeline(opts pipeline.Options) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := pipeline.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %v", err)
	}

	app.Broker.Start()
	defer app.Broker.Stop()

	collector := metrics.NewCollector(app.Broker)
	collector.Start()
	defer collector.Stop()

	report, err := pipeline.NewOrchestrator(app, opts).Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		if report == nil {
			return err
		}
		return fmt.Errorf("run interrupted: %v", err)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d blocks failed", report.Failed, report.Blocks)
	}

	fmt.Println("✓ Run complete")
	return nil
}

func printReport(report *types.RunReport) {
	fmt.Printf("Provider: %s\n", report.Provider)
	fmt.Printf("  Blocks: %d (succeeded: %d, failed: %d, skipped: %d)\n",
		report.Blocks, report.Succeeded, report.Failed, report.Skipped)
	fmt.Printf("  Trips: %d extracted, %d synced, %d failed\n",
		report.TripsTotal, report.TripsSynced, report.TripsFailed)
	fmt.Printf("  Elapsed: %s\n", report.Elapsed().Round(time.Millisecond))
}
