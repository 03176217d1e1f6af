package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atd-dts/mds-ingest/pkg/config"
	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/objectstore"
	"github.com/atd-dts/mds-ingest/pkg/provider"
	"github.com/atd-dts/mds-ingest/pkg/schedule"
	"github.com/atd-dts/mds-ingest/pkg/socrata"
	"github.com/atd-dts/mds-ingest/pkg/timezone"
	"github.com/atd-dts/mds-ingest/pkg/trips"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// payloadObject is the file name appended to a block's data path.
const payloadObject = "trips.json"

// tripError is one entry of a block's error payload: the trip that
// failed, the mutation that was attempted and what came back.
type tripError struct {
	TripID   string `json:"trip_id"`
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Executor runs pipeline stages against schedule blocks of one provider.
// An Executor is safe to share across workers: all held clients are
// concurrency safe, and the stateful provider client is built per call
// through newFeed.
type Executor struct {
	profile   types.ProviderProfile
	cfg       *config.Store
	blobs     *objectstore.Store
	schedules *schedule.Repo
	factory   *trips.Factory
	sink      *socrata.Sink
	collector *TripCollector
	zone      string

	// newFeed builds the per-block provider client. Tests swap it for
	// one pointed at a fake feed.
	newFeed func() (*provider.Client, error)
}

// NewExecutor builds the stage runner for one provider. The profile is
// validated eagerly so a bad MDS version fails the run before any block
// is touched.
func NewExecutor(app *App, profile types.ProviderProfile) (*Executor, error) {
	if _, err := provider.New(profile); err != nil {
		return nil, err
	}
	return &Executor{
		profile:   profile,
		cfg:       app.Config,
		blobs:     app.Blobs,
		schedules: app.Schedules,
		factory:   app.Factory,
		sink:      app.SocrataSink(profile.Name),
		zone:      app.Config.TimeZone(),
		newFeed:   func() (*provider.Client, error) { return provider.New(profile) },
	}, nil
}

// Collect routes every extracted batch into c for --file runs.
func (e *Executor) Collect(c *TripCollector) {
	e.collector = c
}

// Run executes one stage against one block.
func (e *Executor) Run(ctx context.Context, stage types.Stage, block types.ScheduleBlock) types.StageResult {
	switch stage {
	case types.StageExtract:
		return e.Extract(ctx, block)
	case types.StageSyncDB:
		return e.SyncDB(ctx, block)
	case types.StageSyncSocrata:
		return e.SyncSocrata(ctx, block)
	}
	return types.StageResult{
		Stage:      stage,
		ScheduleID: block.ScheduleID,
		Err:        fmt.Errorf("unknown stage %q", stage),
	}
}

// Extract fetches one block's trip hour from the provider feed and lands
// the payload in the object store. The block hour stamps the end of the
// window, so trips are requested for the hour leading up to it.
func (e *Executor) Extract(ctx context.Context, block types.ScheduleBlock) types.StageResult {
	started := time.Now()
	res := types.StageResult{Stage: types.StageExtract, ScheduleID: block.ScheduleID, Status: block.StatusID}
	logger := e.stageLogger(types.StageExtract, block)

	window, err := timezone.NewWindow(block.Year, block.Month, block.Day, block.Hour, -time.Hour, e.zone)
	if err != nil {
		return e.fail(res, started, err)
	}

	feed, err := e.newFeed()
	if err != nil {
		return e.fail(res, started, err)
	}

	logger.Info().
		Int64("start_time", window.UnixStart()).
		Int64("end_time", window.UnixEnd()).
		Msg("fetching trips from provider")

	result, err := feed.GetTrips(ctx, window.UnixStart(), window.UnixEnd())
	if err != nil {
		return e.fail(res, started, fmt.Errorf("extract failed for schedule %d: %w", block.ScheduleID, err))
	}

	body, err := json.Marshal(result.Envelope())
	if err != nil {
		return e.fail(res, started, fmt.Errorf("failed to serialize trips for schedule %d: %w", block.ScheduleID, err))
	}

	// A put that has begun is allowed to finish even when the run is
	// cancelled, so the versioned blob stays consistent.
	key := e.cfg.DataPath(e.profile.Name, window.End) + payloadObject
	ack, err := e.blobs.Put(context.WithoutCancel(ctx), key, body, true)
	if err != nil {
		return e.fail(res, started, fmt.Errorf("failed to store trips for schedule %d: %w", block.ScheduleID, err))
	}

	if e.collector != nil {
		e.collector.Add(result.Trips)
	}

	if err := ctx.Err(); err != nil {
		// Cancel observed after the write: the blob landed but the
		// block is not advanced.
		return e.fail(res, started, err)
	}

	extra := map[string]any{
		"payload": ack.Key,
		"message": "Successfully uploaded to S3",
	}
	if _, err := e.schedules.UpdateStatus(ctx, block.ScheduleID, types.StatusExtracted, extra); err != nil {
		return e.fail(res, started, err)
	}

	res.Status = types.StatusExtracted
	res.Total = result.Count()
	res.Success = result.Count()
	res.Message = fmt.Sprintf("extracted %d trips over %d pages", result.Count(), result.Pages)
	res.Duration = time.Since(started)
	logger.Info().Int("trips", result.Count()).Int("pages", result.Pages).Str("key", ack.Key).
		Msg("trips uploaded")
	return res
}

// SyncDB replays one block's stored payload into the warehouse. Missing
// or undecodable blobs count as empty hours.
func (e *Executor) SyncDB(ctx context.Context, block types.ScheduleBlock) types.StageResult {
	started := time.Now()
	res := types.StageResult{Stage: types.StageSyncDB, ScheduleID: block.ScheduleID, Status: block.StatusID}
	logger := e.stageLogger(types.StageSyncDB, block)

	window, err := timezone.NewWindow(block.Year, block.Month, block.Day, block.Hour, -time.Hour, e.zone)
	if err != nil {
		return e.fail(res, started, err)
	}

	key := e.cfg.DataPath(e.profile.Name, window.End) + payloadObject
	payload := tripsFromDoc(e.blobs.Get(ctx, key))
	res.Total = len(payload)

	if len(payload) == 0 {
		extra := map[string]any{
			"message":             "No trips found in payload",
			"records_total":       0,
			"records_processed":   0,
			"records_error_count": 0,
			"rerun_flag":          false,
		}
		if _, err := e.schedules.UpdateStatus(ctx, block.ScheduleID, types.StatusEmpty, extra); err != nil {
			return e.fail(res, started, err)
		}
		res.Status = types.StatusEmpty
		res.Message = "no trips in payload"
		res.Duration = time.Since(started)
		logger.Info().Str("key", key).Msg("payload empty, block closed")
		return res
	}

	var (
		success int
		errs    []tripError
	)
	for _, data := range payload {
		if err := ctx.Err(); err != nil {
			return e.fail(res, started, err)
		}

		trip := e.factory.New(e.profile.Name, data)
		saved, err := trip.Save(ctx)
		if saved {
			success++
			continue
		}

		response := "not accepted by warehouse"
		if err != nil {
			response = err.Error()
		} else if !trip.IsValid() {
			response = formatValidation(trip.ValidationErrors())
		}
		errs = append(errs, tripError{TripID: trip.ID(), Query: trip.Query(), Response: response})
		logger.Debug().Str("trip_id", trip.ID()).Str("cause", response).Msg("trip rejected")
	}

	errorCount := len(errs)
	var status types.Status
	switch {
	case errorCount == 0:
		status = types.StatusSynced
	case success > 0:
		status = types.StatusSyncedPartial
	default:
		status = types.StatusSyncFailed
	}

	extra := map[string]any{
		"message":             fmt.Sprintf("Processed %d trips: %d stored, %d failed", res.Total, success, errorCount),
		"records_total":       res.Total,
		"records_processed":   success,
		"records_error_count": errorCount,
		"rerun_flag":          errorCount > 0,
	}
	if errorCount > 0 {
		if blob, err := json.Marshal(errs); err == nil {
			extra["error_payload"] = string(blob)
		}
	}
	if _, err := e.schedules.UpdateStatus(ctx, block.ScheduleID, status, extra); err != nil {
		return e.fail(res, started, err)
	}

	res.Status = status
	res.Success = success
	res.Errors = errorCount
	res.Message = extra["message"].(string)
	res.Duration = time.Since(started)
	logger.Info().Int("total", res.Total).Int("stored", success).Int("failed", errorCount).
		Stringer("status", status).Msg("warehouse sync finished")
	return res
}

// SyncSocrata publishes one block's hour from the warehouse to the open
// data portal. There is no precondition: the portal upsert is keyed on
// trip id and reruns overwrite in place.
func (e *Executor) SyncSocrata(ctx context.Context, block types.ScheduleBlock) types.StageResult {
	started := time.Now()
	res := types.StageResult{Stage: types.StageSyncSocrata, ScheduleID: block.ScheduleID, Status: block.StatusID}
	logger := e.stageLogger(types.StageSyncSocrata, block)

	window, err := timezone.NewWindow(block.Year, block.Month, block.Day, block.Hour, -time.Hour, e.zone)
	if err != nil {
		return e.fail(res, started, err)
	}

	records, err := e.sink.Fetch(ctx, window.StartCivil(), window.EndCivil())
	if err != nil {
		return e.fail(res, started, fmt.Errorf("socrata fetch failed for schedule %d: %w", block.ScheduleID, err))
	}

	normalized, err := e.sink.Normalize(records)
	if err != nil {
		return e.fail(res, started, fmt.Errorf("socrata normalize failed for schedule %d: %w", block.ScheduleID, err))
	}

	result, err := e.sink.Upsert(ctx, normalized)
	if err != nil {
		return e.fail(res, started, fmt.Errorf("socrata upsert failed for schedule %d: %w", block.ScheduleID, err))
	}

	status := types.StatusPublished
	if result.Failed() {
		status = types.StatusPublishFailed
	}
	if _, err := e.schedules.UpdateStatus(ctx, block.ScheduleID, status, map[string]any{
		"message": result.String(),
	}); err != nil {
		return e.fail(res, started, err)
	}

	res.Status = status
	res.Total = len(normalized)
	res.Success = len(normalized)
	res.Errors = result.Errors
	res.Message = result.String()
	res.Duration = time.Since(started)
	logger.Info().Int("rows", len(normalized)).Str("result", result.String()).
		Stringer("status", status).Msg("open data sync finished")
	return res
}

func (e *Executor) fail(res types.StageResult, started time.Time, err error) types.StageResult {
	res.Err = err
	res.Duration = time.Since(started)
	return res
}

func (e *Executor) stageLogger(stage types.Stage, block types.ScheduleBlock) zerolog.Logger {
	return log.WithStage(string(stage)).With().
		Str("provider", e.profile.Name).
		Int("schedule_id", block.ScheduleID).
		Str("block", block.Tag()).
		Logger()
}

// tripsFromDoc pulls data.trips out of a stored payload document.
// Anything that does not match the envelope shape counts as empty.
func tripsFromDoc(doc map[string]any) []map[string]any {
	data, ok := doc["data"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := data["trips"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// formatValidation renders a trip's validation failures for the error
// payload.
func formatValidation(errs map[string][]string) string {
	blob, err := json.Marshal(errs)
	if err != nil {
		return "schema validation failed"
	}
	return string(blob)
}
