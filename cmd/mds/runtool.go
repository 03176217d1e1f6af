package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/atd-dts/mds-ingest/pkg/api"
	"github.com/atd-dts/mds-ingest/pkg/health"
	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/metrics"
	"github.com/atd-dts/mds-ingest/pkg/pipeline"
	"github.com/atd-dts/mds-ingest/pkg/timezone"
	"github.com/atd-dts/mds-ingest/pkg/trips"
)

const defaultDockerImage = "atddocker/atd-mds-etl:local"

var runtoolCmd = &cobra.Command{
	Use:   "runtool",
	Short: "Run the full pipeline over a schedule window",
	Long: `Runtool drives every eligible schedule block through extract, sync-db
and sync-socrata in one invocation. By default the stages run in
process; with --docker-mode each stage is dispatched as its own
container and its output captured under ./logs/.

Examples:
  # Catch up the last six hours for one provider
  mds runtool --env-file ~/.mds/staging.env --provider veoride --time-max 2020-1-1-6 --interval 6

  # Re-run everything that never reached the published status
  mds runtool --provider veoride --time-max 2020-1-1-6 --interval 6 --incomplete-only

  # Dispatch each stage as a container, the way the production scheduler does
  mds runtool --env-file ~/.mds/staging.env --provider veoride --time-max 2020-1-1-6 --interval 6 --docker-mode`,
	RunE: runRuntool,
}

func init() {
	stageFlags(runtoolCmd)
	runtoolCmd.Flags().String("env-file", "", "Environment file to load before bootstrapping")
	runtoolCmd.Flags().Bool("incomplete-only", false, "Select blocks that have not reached the published status")
	runtoolCmd.Flags().Bool("no-extract", false, "Skip the extract stage")
	runtoolCmd.Flags().Bool("no-sync-db", false, "Skip the warehouse sync stage")
	runtoolCmd.Flags().Bool("no-sync-socrata", false, "Skip the open data sync stage")
	runtoolCmd.Flags().String("file", "", "Also write the extracted trips to this local JSON file")
	runtoolCmd.Flags().Bool("docker-mode", false, "Dispatch each stage as a docker container")
	runtoolCmd.Flags().String("docker-image", defaultDockerImage, "Image used in docker mode")
	runtoolCmd.Flags().String("docker-args", "", "Extra docker run arguments in docker mode, whitespace separated")
	runtoolCmd.Flags().Bool("no-logs", false, "In docker mode, inherit stdout and stderr instead of writing ./logs/")

	rootCmd.AddCommand(runtoolCmd)
}

func runRuntool(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %v", envFile, err)
		}
	}

	opts := stageOptions(cmd)
	opts.IncompleteOnly, _ = cmd.Flags().GetBool("incomplete-only")
	opts.NoExtract, _ = cmd.Flags().GetBool("no-extract")
	opts.NoSyncDB, _ = cmd.Flags().GetBool("no-sync-db")
	opts.NoSyncSocrata, _ = cmd.Flags().GetBool("no-sync-socrata")
	opts.OutputFile, _ = cmd.Flags().GetString("file")

	if dockerMode, _ := cmd.Flags().GetBool("docker-mode"); dockerMode {
		return runDockerMode(cmd, opts, envFile)
	}
	return runComposite(opts)
}

// runComposite executes the enabled stages in process. When the settings
// document carries METRICS_LISTEN the ops listener and backend probes
// run for the duration of the run.
func runComposite(opts pipeline.Options) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := pipeline.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %v", err)
	}
	metrics.RegisterComponent("config", true, "settings loaded")

	app.Broker.Start()
	defer app.Broker.Stop()

	collector := metrics.NewCollector(app.Broker)
	collector.Start()
	defer collector.Stop()

	if addr := app.Config.Setting("METRICS_LISTEN", ""); addr != "" {
		srv := api.NewServer(addr)
		go func() {
			if err := srv.Start(); err != nil {
				logger := log.WithComponent("runtool")
				logger.Error().Err(err).Msg("ops listener failed")
			}
		}()
		defer func() { _ = srv.Stop(context.Background()) }()

		registry := probeRegistry(app, opts.Provider)
		registry.Start(ctx)
		defer registry.Stop()

		fmt.Printf("Ops listener: http://%s/metrics\n", addr)
	}

	orch := pipeline.NewOrchestrator(app, opts)
	report, err := orch.Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		if report == nil {
			return err
		}
		return fmt.Errorf("run interrupted: %v", err)
	}

	// End of run warehouse roll-up for the window
	if !opts.DryRun && !opts.NoSyncDB {
		if win, werr := orch.Window(); werr == nil {
			printAggregate(ctx, app, report.Provider, win)
		}
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d blocks failed", report.Failed, report.Blocks)
	}
	fmt.Println("✓ Run complete")
	return nil
}

// probeRegistry wires the run's backends into the readiness set: the
// warehouse healthz route, the provider feed as a reachability check and
// the object store client state.
func probeRegistry(app *pipeline.App, providerName string) *health.Registry {
	registry := health.NewRegistry(health.DefaultConfig())

	endpoint := app.Config.HasuraEndpoint()
	healthz := strings.TrimSuffix(endpoint, "/v1/graphql") + "/healthz"
	registry.Register("warehouse", health.NewHTTPChecker(healthz))

	if profile, err := app.Config.ProviderProfile(providerName); err == nil && profile.APIBaseURL != "" {
		// Without query parameters most feeds answer 4xx; any answer
		// below 500 still proves the feed is reachable.
		checker := health.NewHTTPChecker(profile.APIBaseURL).WithStatusRange(200, 499)
		registry.Register("provider", checker)
	}

	registry.Register("objectstore", health.NewFuncChecker(func(ctx context.Context) error {
		if !app.Blobs.Ready() {
			return errors.New("object store not initialized")
		}
		return nil
	}))
	return registry
}

func printAggregate(ctx context.Context, app *pipeline.App, providerName string, win timezone.Window) {
	agg, err := trips.FetchAggregate(ctx, app.Warehouse, providerName, win.StartCivil(), win.EndCivil())
	if err != nil {
		logger := log.WithComponent("runtool")
		logger.Warn().Err(err).Msg("trip aggregate unavailable")
		return
	}
	fmt.Printf("  Warehouse: %s\n", agg)
}

// runDockerMode dispatches each enabled stage of each block as its own
// container and captures the output under ./logs/<provider>/.
func runDockerMode(cmd *cobra.Command, opts pipeline.Options, envFile string) error {
	if envFile == "" {
		return fmt.Errorf("--env-file is required in docker mode")
	}
	image, _ := cmd.Flags().GetString("docker-image")
	extraArgs, _ := cmd.Flags().GetString("docker-args")
	noLogs, _ := cmd.Flags().GetBool("no-logs")

	ctx, stop := signalContext()
	defer stop()

	app, err := pipeline.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %v", err)
	}

	plan, err := pipeline.NewOrchestrator(app, opts).Plan(ctx)
	if err != nil {
		return err
	}

	stages := enabledStageCommands(opts)
	fmt.Printf("Provider: %s\n", plan.Profile.Name)
	fmt.Printf("  Window: %s to %s\n", plan.Window.StartCivil(), plan.Window.EndCivil())
	fmt.Printf("  Blocks: %d, stages per block: %d\n", len(plan.Blocks), len(stages))

	if opts.DryRun {
		for _, block := range plan.Blocks {
			fmt.Printf("  Block %s (schedule %d, status %s)\n", block.Tag(), block.ScheduleID, block.StatusID)
		}
		fmt.Println("✓ Dry run complete")
		return nil
	}

	var failed int
	for i, block := range plan.Blocks {
		if ctx.Err() != nil {
			break
		}
		for _, stage := range stages {
			fmt.Printf("Running block (%d/%d): %s stage %s\n", i+1, len(plan.Blocks), block.Tag(), stage)
			err := runStageContainer(ctx, stageContainer{
				EnvFile:   envFile,
				Image:     image,
				ExtraArgs: extraArgs,
				Stage:     stage,
				Provider:  opts.Provider,
				Block:     block.Tag(),
				Force:     opts.Force,
				NoLogs:    noLogs,
			})
			if err != nil {
				failed++
				fmt.Printf("  Stage %s failed on block %s: %v\n", stage, block.Tag(), err)
				// Later stages read this stage's output; skip them.
				break
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %v", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d stage containers failed", failed)
	}
	fmt.Println("✓ Run complete")
	return nil
}

// enabledStageCommands returns the subcommand names for the enabled
// stages, in execution order.
func enabledStageCommands(opts pipeline.Options) []string {
	var out []string
	if !opts.NoExtract {
		out = append(out, "extract")
	}
	if !opts.NoSyncDB {
		out = append(out, "sync-db")
	}
	if !opts.NoSyncSocrata {
		out = append(out, "sync-socrata")
	}
	return out
}

// stageContainer describes one docker dispatch of one stage on one block.
type stageContainer struct {
	EnvFile   string
	Image     string
	ExtraArgs string
	Stage     string
	Provider  string
	Block     string
	Force     bool
	NoLogs    bool
}

func (c stageContainer) argv() []string {
	argv := []string{"run", "--env-file", c.EnvFile, "--rm"}
	if c.ExtraArgs != "" {
		argv = append(argv, strings.Fields(c.ExtraArgs)...)
	}
	argv = append(argv, c.Image, "mds", c.Stage,
		"--provider", c.Provider,
		"--time-max", c.Block,
		"--interval", "1",
	)
	if c.Force {
		argv = append(argv, "--force")
	}
	return argv
}

func runStageContainer(ctx context.Context, c stageContainer) error {
	run := exec.CommandContext(ctx, "docker", c.argv()...)

	if c.NoLogs {
		run.Stdout = os.Stdout
		run.Stderr = os.Stderr
		return run.Run()
	}

	dir := filepath.Join("logs", c.Provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}

	name := fmt.Sprintf("%s-%s-%s", c.Provider, c.Block, c.Stage)
	outPath := filepath.Join(dir, name+".log")
	errPath := filepath.Join(dir, name+"-error.log")

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}
	defer outFile.Close()

	errFile, err := os.OpenFile(errPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open error log file: %v", err)
	}
	defer errFile.Close()

	run.Stdout = outFile
	run.Stderr = errFile

	fmt.Printf("  Log: $ tail %s\n", outPath)
	return run.Run()
}
