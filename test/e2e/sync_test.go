package e2e

import (
	"context"
	"strings"
	"testing"

	"github.com/atd-dts/mds-ingest/pkg/pipeline"
	"github.com/atd-dts/mds-ingest/pkg/types"
	"github.com/atd-dts/mds-ingest/test/framework"
)

// TestSyncDBHappyPath replays a ten-trip payload into the warehouse and
// checks the terminal status row the block ends on.
func TestSyncDBHappyPath(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	env, err := framework.NewEnv(nil)
	if err != nil {
		t.Fatalf("Failed to build environment: %v", err)
	}
	defer env.Stop()

	block := framework.Block(1, 1, types.StatusExtracted)
	env.Warehouse.SeedBlocks(block)
	if err := env.SeedPayload(block, framework.SampleTrips("trip", 10)); err != nil {
		t.Fatalf("Failed to seed payload: %v", err)
	}

	report, err := env.Run(context.Background(), pipeline.Options{
		TimeMax:       "2020-1-1-1",
		NoExtract:     true,
		NoSyncSocrata: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assert := framework.NewAssertions(t)
	assert.ReportOutcome(report, 1, 0, 0)
	assert.BlockStatus(env.Warehouse, 1, types.StatusSynced)
	assert.InsertCount(env.Warehouse, 10)

	updates := env.Warehouse.Recorded("updateStatus")
	if len(updates) == 0 {
		t.Fatal("Warehouse received no status update")
	}
	last := updates[len(updates)-1]
	for _, want := range []string{
		"records_processed: 10",
		"records_total: 10",
		"records_error_count: 0",
		"rerun_flag: false",
	} {
		if !strings.Contains(last, want) {
			t.Errorf("Status update is missing %q:\n%s", want, last)
		}
	}
}

// TestSyncDBPartial rejects three of ten inserts at the warehouse and
// checks the partial status and the error payload naming every loser.
func TestSyncDBPartial(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	env, err := framework.NewEnv(nil)
	if err != nil {
		t.Fatalf("Failed to build environment: %v", err)
	}
	defer env.Stop()

	block := framework.Block(1, 1, types.StatusExtracted)
	env.Warehouse.SeedBlocks(block)
	if err := env.SeedPayload(block, framework.SampleTrips("trip", 10)); err != nil {
		t.Fatalf("Failed to seed payload: %v", err)
	}
	rejected := []string{"trip-2", "trip-5", "trip-9"}
	env.Warehouse.RejectTrips(rejected...)

	report, err := env.Run(context.Background(), pipeline.Options{
		TimeMax:       "2020-1-1-1",
		NoExtract:     true,
		NoSyncSocrata: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assert := framework.NewAssertions(t)
	assert.BlockStatus(env.Warehouse, 1, types.StatusSyncedPartial)
	if report.TripsFailed != 3 {
		t.Errorf("Report counts %d failed trips, expected 3", report.TripsFailed)
	}

	updates := env.Warehouse.Recorded("updateStatus")
	if len(updates) == 0 {
		t.Fatal("Warehouse received no status update")
	}
	last := updates[len(updates)-1]
	for _, want := range []string{"records_error_count: 3", "records_processed: 7", "error_payload"} {
		if !strings.Contains(last, want) {
			t.Errorf("Status update is missing %q", want)
		}
	}
	for _, id := range rejected {
		if !strings.Contains(last, id) {
			t.Errorf("Error payload does not name rejected trip %s", id)
		}
	}
}

// TestSocrataEmptyResult publishes an hour the warehouse has no trips
// for and checks the empty upsert still lands and the block still
// reaches published.
func TestSocrataEmptyResult(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	env, err := framework.NewEnv(nil)
	if err != nil {
		t.Fatalf("Failed to build environment: %v", err)
	}
	defer env.Stop()

	env.Warehouse.SeedBlocks(framework.Block(1, 1, types.StatusSynced))
	env.Warehouse.SetTrips(nil)

	report, err := env.Run(context.Background(), pipeline.Options{
		TimeMax:   "2020-1-1-1",
		NoExtract: true,
		NoSyncDB:  true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assert := framework.NewAssertions(t)
	assert.ReportOutcome(report, 1, 0, 0)
	assert.BlockStatus(env.Warehouse, 1, types.StatusPublished)

	batches := env.Portal.Batches()
	if len(batches) != 1 {
		t.Fatalf("Portal received %d upserts, expected exactly 1", len(batches))
	}
	if len(batches[0]) != 0 {
		t.Errorf("Upsert batch holds %d rows, expected an empty list", len(batches[0]))
	}
}
