package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atd-dts/mds-ingest/pkg/events"
	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/schedule"
	"github.com/atd-dts/mds-ingest/pkg/timezone"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// Options selects the provider, time window, stages and behavior of one
// run.
type Options struct {
	Provider string
	// TimeMax is the inclusive end of the run window in yyyy-m-d-h form.
	TimeMax string
	// TimeMin makes the window explicit: (TimeMin, TimeMax]. When empty
	// the window is the Interval hours leading up to TimeMax.
	TimeMin string
	// Interval is the window length in hours, default 1.
	Interval int

	// Force runs every stage regardless of block status and drops the
	// status predicate from the schedule query.
	Force bool
	// IncompleteOnly selects blocks that have not reached the published
	// status yet.
	IncompleteOnly bool
	// DryRun lists the selected blocks without executing any stage.
	DryRun bool

	NoExtract     bool
	NoSyncDB      bool
	NoSyncSocrata bool

	// OutputFile also writes every extracted trip of the run to a local
	// JSON file in the provider envelope shape.
	OutputFile string

	// MaxThreads bounds block parallelism. Zero falls back to the
	// ATD_MDS_MAX_THREADS environment value, then to 1.
	MaxThreads int
}

// Orchestrator expands one run request into schedule blocks and drives
// each through the enabled stages.
type Orchestrator struct {
	app  *App
	opts Options
}

// NewOrchestrator builds an orchestrator for one run request.
func NewOrchestrator(app *App, opts Options) *Orchestrator {
	return &Orchestrator{app: app, opts: opts}
}

// Plan is a resolved run request: the provider profile, the civil
// window and the schedule blocks that matched the status filter.
type Plan struct {
	Profile types.ProviderProfile
	Window  timezone.Window
	Blocks  []types.ScheduleBlock
}

// Plan resolves the request without executing any stage. Run uses it
// internally; callers that dispatch blocks elsewhere, like runtool's
// docker mode, use it directly.
func (o *Orchestrator) Plan(ctx context.Context) (*Plan, error) {
	profile, err := o.app.Config.ProviderProfile(o.opts.Provider)
	if err != nil {
		return nil, err
	}

	window, err := o.Window()
	if err != nil {
		return nil, err
	}

	query := schedule.Query{
		ProviderID: profile.ProviderID,
		TimeMin:    window.Start,
		TimeMax:    window.End,
	}
	o.applyStatusFilter(&query)

	blocks, err := o.app.Schedules.QueryPending(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Plan{Profile: profile, Window: window, Blocks: blocks}, nil
}

// Run executes the request and reports per-block outcomes. Stage and
// block failures land in the report; only setup problems return an
// error. When the context is cancelled mid-run the partial report is
// returned together with the context error.
func (o *Orchestrator) Run(ctx context.Context) (*types.RunReport, error) {
	plan, err := o.Plan(ctx)
	if err != nil {
		return nil, err
	}
	profile, blocks := plan.Profile, plan.Blocks

	logger := log.WithComponent("orchestrator").With().Str("provider", profile.Name).Logger()
	logger.Info().
		Int("blocks", len(blocks)).
		Str("time_min", plan.Window.StartCivil()).
		Str("time_max", plan.Window.EndCivil()).
		Msg("run starting")

	report := &types.RunReport{Provider: profile.Name, Blocks: len(blocks), StartedAt: time.Now()}
	o.publish(&events.Event{Type: events.EventRunStarted, Provider: profile.Name})

	if o.opts.DryRun {
		for _, block := range blocks {
			logger.Info().
				Int("schedule_id", block.ScheduleID).
				Str("block", block.Tag()).
				Stringer("status", block.StatusID).
				Msg("dry run, block not executed")
		}
		report.Skipped = len(blocks)
		return o.finish(report), nil
	}

	exec, err := NewExecutor(o.app, profile)
	if err != nil {
		return nil, err
	}

	var collector *TripCollector
	if o.opts.OutputFile != "" {
		collector = NewTripCollector()
		exec.Collect(collector)
	}

	stages := o.stages()

	// Blocks are handed out in ascending date order, as the warehouse
	// returned them. Workers never share a schedule id.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limit())

	for _, block := range blocks {
		block := block
		g.Go(func() error {
			results := o.runBlock(gctx, exec, stages, block)

			mu.Lock()
			defer mu.Unlock()
			report.Results = append(report.Results, results...)
			tally(report, results)
			return nil
		})
	}
	_ = g.Wait()

	if collector != nil {
		if err := collector.WriteFile(o.opts.OutputFile); err != nil {
			logger.Error().Err(err).Msg("failed to write trips file")
		} else {
			logger.Info().
				Int("trips", collector.Count()).
				Str("file", o.opts.OutputFile).
				Msg("trips file written")
		}
	}

	o.finish(report)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// Window resolves the run's civil range: (time-min, time-max] when an
// explicit minimum is given, otherwise the interval hours leading up to
// time-max.
func (o *Orchestrator) Window() (timezone.Window, error) {
	zone := o.app.Config.TimeZone()
	maxY, maxM, maxD, maxH, err := timezone.ParseBlockTime(o.opts.TimeMax)
	if err != nil {
		return timezone.Window{}, fmt.Errorf("invalid time-max: %w", err)
	}

	if o.opts.TimeMin != "" {
		minY, minM, minD, minH, err := timezone.ParseBlockTime(o.opts.TimeMin)
		if err != nil {
			return timezone.Window{}, fmt.Errorf("invalid time-min: %w", err)
		}
		maxW, err := timezone.NewWindow(maxY, maxM, maxD, maxH, 0, zone)
		if err != nil {
			return timezone.Window{}, err
		}
		minW, err := timezone.NewWindow(minY, minM, minD, minH, 0, zone)
		if err != nil {
			return timezone.Window{}, err
		}
		return timezone.Window{Start: minW.Start, End: maxW.Start}, nil
	}

	interval := o.opts.Interval
	if interval <= 0 {
		interval = 1
	}
	return timezone.NewWindow(maxY, maxM, maxD, maxH, -time.Duration(interval)*time.Hour, zone)
}

// applyStatusFilter sets the schedule query's status predicate from the
// run flags. The default matches the first enabled stage's precondition:
// extract wants untouched blocks, a db-only run wants extracted ones and
// a socrata-only run has no precondition at all.
func (o *Orchestrator) applyStatusFilter(q *schedule.Query) {
	switch {
	case o.opts.Force:
		// No predicate: reruns pick up blocks in any state.
	case o.opts.IncompleteOnly:
		q.StatusCheck = true
		q.Status = types.StatusPublished
		q.Op = types.StatusOpLt
	case !o.opts.NoExtract:
		q.StatusCheck = true
		q.Status = types.StatusPending
		q.Op = types.StatusOpEq
	case !o.opts.NoSyncDB:
		q.StatusCheck = true
		q.Status = types.StatusExtracted
		q.Op = types.StatusOpEq
	}
}

// stages returns the enabled stages in execution order.
func (o *Orchestrator) stages() []types.Stage {
	var out []types.Stage
	if !o.opts.NoExtract {
		out = append(out, types.StageExtract)
	}
	if !o.opts.NoSyncDB {
		out = append(out, types.StageSyncDB)
	}
	if !o.opts.NoSyncSocrata {
		out = append(out, types.StageSyncSocrata)
	}
	return out
}

func (o *Orchestrator) limit() int {
	if o.opts.MaxThreads > 0 {
		return o.opts.MaxThreads
	}
	if n := o.app.Config.Env().MaxThreads; n > 0 {
		return n
	}
	return 1
}

// runBlock drives one block through the enabled stages in order. A stage
// whose precondition does not match the block's current status is
// skipped; a stage failure stops the block so later stages never consume
// half-written state.
func (o *Orchestrator) runBlock(ctx context.Context, exec *Executor, stages []types.Stage, block types.ScheduleBlock) []types.StageResult {
	logger := log.WithBlock(block.ScheduleID, block.Tag()).With().
		Str("provider", exec.profile.Name).Logger()

	o.publish(&events.Event{
		Type:       events.EventBlockStarted,
		Provider:   exec.profile.Name,
		ScheduleID: block.ScheduleID,
		Block:      block.Tag(),
		Status:     block.StatusID,
	})

	// Status is carried in memory between stages, so a composite run
	// sees its own progress without re-reading the schedule row.
	status := block.StatusID
	var results []types.StageResult

	for _, stage := range stages {
		if ctx.Err() != nil {
			logger.Warn().Msg("run cancelled, remaining stages skipped")
			break
		}
		if !o.opts.Force && !preconditionMet(stage, status) {
			logger.Debug().
				Str("stage", string(stage)).
				Stringer("status", status).
				Msg("stage precondition not met, skipping")
			continue
		}

		block.StatusID = status
		o.publish(&events.Event{
			Type:       events.EventStageStarted,
			Provider:   exec.profile.Name,
			ScheduleID: block.ScheduleID,
			Block:      block.Tag(),
			Stage:      stage,
		})

		res := exec.Run(ctx, stage, block)
		results = append(results, res)

		if res.Failed() {
			logger.Error().Err(res.Err).Str("stage", string(stage)).Msg("stage failed, block halted")
			o.publish(events.StageEvent(events.EventStageFailed, exec.profile.Name, block, res))
			break
		}

		o.publish(events.StageEvent(events.EventStageCompleted, exec.profile.Name, block, res))
		status = res.Status
	}

	eventType := events.EventBlockCompleted
	if len(results) == 0 {
		eventType = events.EventBlockSkipped
	}
	o.publish(&events.Event{
		Type:       eventType,
		Provider:   exec.profile.Name,
		ScheduleID: block.ScheduleID,
		Block:      block.Tag(),
		Status:     status,
	})
	return results
}

// preconditionMet reports whether a stage may run on a block in the
// given status. Socrata sync has no precondition.
func preconditionMet(stage types.Stage, status types.Status) bool {
	switch stage {
	case types.StageExtract:
		return status == types.StatusPending
	case types.StageSyncDB:
		return status == types.StatusExtracted
	}
	return true
}

// tally folds one block's stage results into the run report.
func tally(report *types.RunReport, results []types.StageResult) {
	if len(results) == 0 {
		report.Skipped++
		return
	}
	failed := false
	for _, res := range results {
		if res.Failed() {
			failed = true
		}
		switch res.Stage {
		case types.StageExtract:
			report.TripsTotal += res.Total
		case types.StageSyncDB:
			report.TripsSynced += res.Success
			report.TripsFailed += res.Errors
		}
	}
	if failed {
		report.Failed++
	} else {
		report.Succeeded++
	}
}

func (o *Orchestrator) finish(report *types.RunReport) *types.RunReport {
	report.FinishedAt = time.Now()
	o.publish(&events.Event{
		Type:     events.EventRunCompleted,
		Provider: report.Provider,
		Trips:    report.TripsSynced,
		Errors:   report.TripsFailed,
		Duration: report.Elapsed(),
	})
	return report
}

func (o *Orchestrator) publish(event *events.Event) {
	if o.app.Broker != nil {
		o.app.Broker.Publish(event)
	}
}
