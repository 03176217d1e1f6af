package framework

import (
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// TestingT is the subset of testing.T the framework needs.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	Helper()
}

// Assertions provides outcome checks against the fakes.
type Assertions struct {
	t TestingT
}

// NewAssertions creates an Assertions instance bound to the test.
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// BlockStatus asserts that a schedule row holds the given status.
func (a *Assertions) BlockStatus(wh *Warehouse, scheduleID int, want types.Status) {
	a.t.Helper()

	got, ok := wh.StatusOf(scheduleID)
	if !ok {
		a.t.Fatalf("Schedule %d does not exist in the warehouse", scheduleID)
	}
	if got != want {
		a.t.Fatalf("Schedule %d has status %d, expected %d", scheduleID, int(got), int(want))
	}
}

// ObjectExists asserts that the store holds an object at the key.
func (a *Assertions) ObjectExists(store *ObjectStore, key string) {
	a.t.Helper()

	if !store.Has(key) {
		a.t.Fatalf("Object %s does not exist in the store", key)
	}
}

// ObjectMissing asserts that the store holds nothing at the key.
func (a *Assertions) ObjectMissing(store *ObjectStore, key string) {
	a.t.Helper()

	if store.Has(key) {
		a.t.Fatalf("Object %s exists in the store, expected it to be absent", key)
	}
}

// InsertCount asserts how many trip inserts reached the warehouse.
func (a *Assertions) InsertCount(wh *Warehouse, want int) {
	a.t.Helper()

	if got := wh.InsertCount(); got != want {
		a.t.Fatalf("Warehouse received %d trip inserts, expected %d", got, want)
	}
}

// ReportOutcome asserts the block tallies of a run report.
func (a *Assertions) ReportOutcome(report *types.RunReport, succeeded, failed, skipped int) {
	a.t.Helper()

	if report == nil {
		a.t.Fatalf("Run report is nil")
	}
	if report.Succeeded != succeeded || report.Failed != failed || report.Skipped != skipped {
		a.t.Fatalf("Run report has succeeded=%d failed=%d skipped=%d, expected %d/%d/%d",
			report.Succeeded, report.Failed, report.Skipped, succeeded, failed, skipped)
	}
}
