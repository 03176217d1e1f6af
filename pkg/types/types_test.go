package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestStatusString tests the human-readable names for status codes
func TestStatusString(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusExtracted, "extracted"},
		{StatusSynced, "synced"},
		{StatusSyncedPartial, "synced-partial"},
		{StatusSyncFailed, "sync-failed"},
		{StatusEmpty, "empty"},
		{StatusPublished, "published"},
		{StatusPublishFailed, "publish-failed"},
		{StatusTimeout, "timeout"},
		{Status(42), "status(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

// TestStatusTerminal tests which statuses end a block's lifecycle
func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		terminal bool
	}{
		{"pending is not terminal", StatusPending, false},
		{"extracted is not terminal", StatusExtracted, false},
		{"synced is terminal", StatusSynced, true},
		{"partial sync is terminal", StatusSyncedPartial, true},
		{"all-fail sync is terminal", StatusSyncFailed, true},
		{"empty payload is terminal", StatusEmpty, true},
		{"published is terminal", StatusPublished, true},
		{"publish failure is terminal", StatusPublishFailed, true},
		{"timeout is not terminal", StatusTimeout, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

// TestScheduleBlockTag tests the unpadded block tag format
func TestScheduleBlockTag(t *testing.T) {
	tests := []struct {
		name     string
		block    ScheduleBlock
		expected string
	}{
		{
			name:     "single digit components",
			block:    ScheduleBlock{Year: 2020, Month: 1, Day: 1, Hour: 1},
			expected: "2020-1-1-1",
		},
		{
			name:     "double digit components",
			block:    ScheduleBlock{Year: 2020, Month: 12, Day: 31, Hour: 23},
			expected: "2020-12-31-23",
		},
		{
			name:     "midnight hour",
			block:    ScheduleBlock{Year: 2019, Month: 6, Day: 15, Hour: 0},
			expected: "2019-6-15-0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.block.Tag())
		})
	}
}

// TestScheduleBlockCivil tests wall-clock conversion of block components
func TestScheduleBlockCivil(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	assert.NoError(t, err)

	block := ScheduleBlock{Year: 2020, Month: 1, Day: 1, Hour: 17}
	civil := block.Civil(loc)

	assert.Equal(t, 2020, civil.Year())
	assert.Equal(t, time.January, civil.Month())
	assert.Equal(t, 1, civil.Day())
	assert.Equal(t, 17, civil.Hour())
	assert.Equal(t, loc, civil.Location())
}

// TestMDSVersionShort tests the Accept header version component
func TestMDSVersionShort(t *testing.T) {
	assert.Equal(t, "0.2", V020.Short())
	assert.Equal(t, "0.3", V030.Short())
	assert.Equal(t, "0.4", V040.Short())
}

// TestStagesOrder tests that pipeline stages are listed in execution order
func TestStagesOrder(t *testing.T) {
	stages := Stages()
	assert.Equal(t, []Stage{StageExtract, StageSyncDB, StageSyncSocrata}, stages)
}

// TestRunReportElapsed tests run duration accounting
func TestRunReportElapsed(t *testing.T) {
	start := time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC)
	report := RunReport{
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
	}
	assert.Equal(t, 90*time.Second, report.Elapsed())
}
