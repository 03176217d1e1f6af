/*
Package types defines the core data structures used throughout the MDS
ingestion pipeline.

This package contains the fundamental types that represent the domain model:
schedule blocks, status codes, provider profiles, pipeline stages, and run
outcomes. These types are used by all other packages for schedule state
management, provider communication, and orchestration logic.

# Core Types

Schedule state:
  - ScheduleBlock: one (provider, hour) unit of work keyed by schedule_id
  - Status: the block lifecycle code written to the warehouse
  - StatusOp: comparison operator for schedule status predicates

Provider configuration:
  - ProviderProfile: per-provider connection settings (version, auth, paging)
  - MDSVersion: the provider API dialect (0.2.0, 0.3.0, 0.4.0)
  - AuthType: oauth, bearer, basic, or custom authentication

Pipeline outcomes:
  - Stage: extract, sync_db, or sync_socrata
  - StageResult: outcome of one stage run against one block
  - RunReport: aggregate outcome across every block of a run

# Status Lifecycle

Blocks follow a state machine driven by the three pipeline stages:

	0 (pending) → 2 (extracted) → {5, 6, -6, 7}
	{5, 6} → {8, -8}

	 5: every trip reached the warehouse
	 6: some trips failed validation or insertion
	-6: every trip insert failed
	 7: the hour contained no trips
	 8: open-data upsert succeeded
	-8: open-data upsert reported errors

The rerun flag is raised whenever a block finishes with errors so a later
pass can retry it with --incomplete-only.

# Thread Safety

All types in this package are plain data. They are safe to read
concurrently; mutations must be synchronized by callers. Each pipeline
worker owns its block exclusively for the duration of a stage.
*/
package types
