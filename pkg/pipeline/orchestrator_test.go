package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atd-dts/mds-ingest/pkg/events"
	"github.com/atd-dts/mds-ingest/pkg/schedule"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

func runOpts(opts Options) Options {
	if opts.Provider == "" {
		opts.Provider = "sample_co"
	}
	if opts.TimeMax == "" {
		opts.TimeMax = "2020-1-1-1"
	}
	return opts
}

// TestRunPipelineEndToEnd tests a full extract, warehouse sync and
// publish pass over one block
func TestRunPipelineEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{testBlock(1, 1, types.StatusPending)}
	h.feed.trips = []map[string]any{sampleTrip("trip-a"), sampleTrip("trip-b")}
	h.warehouse.trips = []map[string]any{warehouseRow("trip-a", "dev-1"), warehouseRow("trip-b", "dev-2")}

	report, err := NewOrchestrator(h.app, runOpts(Options{})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Blocks)
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 2, report.TripsTotal)
	assert.Equal(t, 2, report.TripsSynced)
	assert.Zero(t, report.TripsFailed)

	require.Len(t, report.Results, 3)
	assert.Equal(t, types.StageExtract, report.Results[0].Stage)
	assert.Equal(t, types.StageSyncDB, report.Results[1].Stage)
	assert.Equal(t, types.StageSyncSocrata, report.Results[2].Stage)

	// The schedule query holds the first stage's precondition.
	fetches := h.warehouse.recorded("fetchPendingSchedules")
	require.Len(t, fetches, 1)
	assert.Contains(t, fetches[0], "status_id: { _eq: 0 }")

	// One status advance per stage, in pipeline order.
	updates := h.warehouse.recorded("updateStatus")
	require.Len(t, updates, 3)
	assert.Contains(t, updates[0], "status_id: 2")
	assert.Contains(t, updates[1], "status_id: 5")
	assert.Contains(t, updates[2], "status_id: 8")
}

// TestRunDryRun tests that a dry run lists blocks without touching them
func TestRunDryRun(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{
		testBlock(1, 1, types.StatusPending),
		testBlock(2, 2, types.StatusPending),
	}

	report, err := NewOrchestrator(h.app, runOpts(Options{
		TimeMax: "2020-1-1-2", Interval: 2, DryRun: true,
	})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Blocks)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, report.Results)
	assert.Empty(t, h.warehouse.recorded("updateStatus"))
	assert.Empty(t, h.feed.query("min_end_time"), "dry run must not reach the provider")
}

// TestRunPreconditionSkips tests that finished stages are not repeated
// on an already published block
func TestRunPreconditionSkips(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{testBlock(1, 1, types.StatusPublished)}
	h.warehouse.trips = []map[string]any{warehouseRow("trip-a", "dev-1")}

	report, err := NewOrchestrator(h.app, runOpts(Options{})).Run(context.Background())

	require.NoError(t, err)
	// Extract and warehouse sync are skipped; only the portal publish
	// has no precondition.
	require.Len(t, report.Results, 1)
	assert.Equal(t, types.StageSyncSocrata, report.Results[0].Stage)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, h.feed.query("min_end_time"))

	updates := h.warehouse.recorded("updateStatus")
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "status_id: 8")
}

// TestRunBlockSkippedEntirely tests that a block with no runnable stage
// counts as skipped
func TestRunBlockSkippedEntirely(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{testBlock(1, 1, types.StatusPublished)}

	report, err := NewOrchestrator(h.app, runOpts(Options{
		NoSyncDB: true, NoSyncSocrata: true,
	})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Succeeded)
	assert.Empty(t, report.Results)
	assert.Empty(t, h.warehouse.recorded("updateStatus"))
}

// TestRunForceReruns tests that force drops both the query predicate and
// the stage preconditions
func TestRunForceReruns(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{testBlock(1, 1, types.StatusPublished)}
	h.feed.trips = []map[string]any{sampleTrip("trip-a")}
	h.warehouse.trips = []map[string]any{warehouseRow("trip-a", "dev-1")}

	report, err := NewOrchestrator(h.app, runOpts(Options{Force: true})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Results, 3)

	fetches := h.warehouse.recorded("fetchPendingSchedules")
	require.Len(t, fetches, 1)
	assert.NotContains(t, fetches[0], "status_id:")
}

// TestRunStageFailureHaltsBlock tests that a failed extract stops the
// block before the warehouse sync
func TestRunStageFailureHaltsBlock(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{testBlock(1, 1, types.StatusPending)}
	h.feed.status = 500

	report, err := NewOrchestrator(h.app, runOpts(Options{})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 1)
	assert.Equal(t, types.StageExtract, report.Results[0].Stage)
	assert.True(t, report.Results[0].Failed())
	assert.Empty(t, h.warehouse.recorded("updateStatus"))
	assert.Zero(t, h.warehouse.insertCount())
}

// TestRunMultipleBlocks tests a bounded worker pool over several blocks
func TestRunMultipleBlocks(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{
		testBlock(1, 1, types.StatusSynced),
		testBlock(2, 2, types.StatusSynced),
		testBlock(3, 3, types.StatusSynced),
	}
	h.warehouse.trips = []map[string]any{warehouseRow("trip-a", "dev-1")}

	report, err := NewOrchestrator(h.app, runOpts(Options{
		TimeMax: "2020-1-1-3", Interval: 3,
		NoExtract: true, NoSyncDB: true,
		MaxThreads: 2,
	})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.Blocks)
	assert.Equal(t, 3, report.Succeeded)
	assert.Len(t, h.warehouse.recorded("updateStatus"), 3)
}

// TestApplyStatusFilter tests the mapping from run flags to the
// schedule query predicate
func TestApplyStatusFilter(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		check  bool
		status types.Status
		op     types.StatusOp
	}{
		{name: "extract first", opts: Options{}, check: true, status: types.StatusPending, op: types.StatusOpEq},
		{name: "sync-db first", opts: Options{NoExtract: true}, check: true, status: types.StatusExtracted, op: types.StatusOpEq},
		{name: "socrata only", opts: Options{NoExtract: true, NoSyncDB: true}, check: false},
		{name: "incomplete only", opts: Options{IncompleteOnly: true}, check: true, status: types.StatusPublished, op: types.StatusOpLt},
		{name: "forced", opts: Options{Force: true, IncompleteOnly: true}, check: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Orchestrator{opts: tt.opts}
			var q schedule.Query
			o.applyStatusFilter(&q)

			assert.Equal(t, tt.check, q.StatusCheck)
			if tt.check {
				assert.Equal(t, tt.status, q.Status)
				assert.Equal(t, tt.op, q.Op)
			}
		})
	}
}

// TestRunExplicitWindow tests the (time-min, time-max] form of the
// schedule window
func TestRunExplicitWindow(t *testing.T) {
	h := newHarness(t)

	_, err := NewOrchestrator(h.app, runOpts(Options{
		TimeMin: "2019-12-31-23", TimeMax: "2020-1-1-2",
	})).Run(context.Background())

	require.NoError(t, err)
	fetches := h.warehouse.recorded("fetchPendingSchedules")
	require.Len(t, fetches, 1)
	assert.Contains(t, fetches[0], `date: { _gt: "2019-12-31 23:00:00" }`)
	assert.Contains(t, fetches[0], `_and: { date: { _lte: "2020-01-01 02:00:00" }}`)
}

// TestRunIntervalWindow tests the interval form of the schedule window
func TestRunIntervalWindow(t *testing.T) {
	h := newHarness(t)

	_, err := NewOrchestrator(h.app, runOpts(Options{
		TimeMax: "2020-1-1-2", Interval: 2,
	})).Run(context.Background())

	require.NoError(t, err)
	fetches := h.warehouse.recorded("fetchPendingSchedules")
	require.Len(t, fetches, 1)
	assert.Contains(t, fetches[0], `date: { _gt: "2020-01-01 00:00:00" }`)
	assert.Contains(t, fetches[0], `_and: { date: { _lte: "2020-01-01 02:00:00" }}`)
}

// TestRunWritesOutputFile tests that extracted trips also land in the
// requested local file
func TestRunWritesOutputFile(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{testBlock(1, 1, types.StatusPending)}
	h.feed.trips = []map[string]any{sampleTrip("trip-a"), sampleTrip("trip-b")}
	out := filepath.Join(t.TempDir(), "trips.json")

	report, err := NewOrchestrator(h.app, runOpts(Options{
		NoSyncDB: true, NoSyncSocrata: true, OutputFile: out,
	})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Len(t, tripsFromDoc(doc), 2)
}

// TestRunPublishesEvents tests the event sequence of a single-block run
func TestRunPublishesEvents(t *testing.T) {
	h := newHarness(t)
	h.warehouse.schedule = []types.ScheduleBlock{testBlock(1, 1, types.StatusPending)}
	h.feed.trips = []map[string]any{sampleTrip("trip-a")}

	h.app.Broker.Start()
	t.Cleanup(h.app.Broker.Stop)
	sub := h.app.Broker.Subscribe()

	_, err := NewOrchestrator(h.app, runOpts(Options{
		NoSyncDB: true, NoSyncSocrata: true,
	})).Run(context.Background())
	require.NoError(t, err)

	var seq []events.EventType
	deadline := time.After(5 * time.Second)
collect:
	for {
		select {
		case ev := <-sub:
			seq = append(seq, ev.Type)
			if ev.Type == events.EventRunCompleted {
				break collect
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, got %v", events.EventRunCompleted, seq)
		}
	}

	assert.Equal(t, []events.EventType{
		events.EventRunStarted,
		events.EventBlockStarted,
		events.EventStageStarted,
		events.EventStageCompleted,
		events.EventBlockCompleted,
		events.EventRunCompleted,
	}, seq)
}

// TestRunUnknownProvider tests the profile lookup guard
func TestRunUnknownProvider(t *testing.T) {
	h := newHarness(t)

	_, err := NewOrchestrator(h.app, runOpts(Options{Provider: "ghost_co"})).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

// TestRunInvalidTimeMax tests the block time parsing guard
func TestRunInvalidTimeMax(t *testing.T) {
	h := newHarness(t)

	_, err := NewOrchestrator(h.app, runOpts(Options{TimeMax: "2020-13-1-1"})).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time-max")
}
