/*
Package schedule is the query and update layer for the block schedule.

The schedule table in the warehouse drives all pipeline work: one row per
(provider, hour), created by an external scheduler and advanced here as
stages complete or fail. The repository exposes exactly two operations:

  - QueryPending: the blocks for a provider inside a civil time window,
    optionally filtered by status, always ordered by ascending date.
  - UpdateStatus: advance one block and set outcome columns (payload,
    message, record tallies, rerun flag, error payload) atomically.

Blocks are never inserted or deleted by the pipeline. Status updates for
a single schedule_id are serialized by the orchestrator: a worker owns
its block exclusively while a stage runs.
*/
package schedule
