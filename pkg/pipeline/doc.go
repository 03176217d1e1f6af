// Package pipeline turns one run request into per-block stage work.
//
// Bootstrap wires the shared clients (settings store, object store,
// warehouse, schedule repository, geography enricher, event broker)
// into an App. An Orchestrator expands the request's civil time window
// into schedule blocks, selects blocks by status, and drives each block
// through the enabled stages with a bounded worker pool. The Executor
// holds the per-stage logic: extract pulls trips from the provider feed
// into the object store, sync_db replays the stored payload into the
// warehouse trip by trip, and sync_socrata republishes the warehouse
// rows to the open data portal.
//
// Every stage run lands a status update on its schedule row and a
// StageResult in the run report, so a failed run can be replayed with
// the same request.
package pipeline
