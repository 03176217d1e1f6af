/*
Package metrics provides Prometheus metrics and health endpoints for the
ingestion pipeline.

All metrics are registered against the default registry at package init and
exposed through promhttp via Handler(). The run tool serves them on its
sidecar listener together with the /health, /ready and /live endpoints so a
scheduled container can be probed while a run is in progress.

# Metrics Catalog

Pipeline:

	mds_blocks_in_flight                       Gauge. Blocks currently being processed.
	mds_blocks_processed_total{provider,status} Counter. Blocks finished, by final status name.
	mds_blocks_skipped_total{provider}          Counter. Blocks whose status gated the stage.

Stages:

	mds_stages_total{stage,outcome}            Counter. Stage executions, outcome is completed or failed.
	mds_stage_duration_seconds{stage}          Histogram. Wall time per stage.

Trips:

	mds_trips_extracted_total{provider}        Counter. Trips fetched from provider feeds.
	mds_trips_synced_total{provider}           Counter. Trips written to the warehouse.
	mds_trip_errors_total{provider}            Counter. Trips rejected during warehouse sync.
	mds_socrata_rows_total{provider}           Counter. Rows upserted into the open data portal.

Runs:

	mds_runs_total{provider}                   Counter. Completed pipeline runs.
	mds_run_duration_seconds                   Histogram. End to end run duration.
	mds_last_run_timestamp_seconds{provider}   Gauge. Unix time of the last completed run.

# Collector

The Collector subscribes to the events.Broker and translates pipeline
events into metric updates, so stage code never touches a metric directly:

	broker := events.NewBroker()
	broker.Start()

	collector := metrics.NewCollector(broker)
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())

# Health Checks

The health checker tracks named components registered by the run tool.
Overall health (/health) fails when any registered component is unhealthy.
Readiness (/ready) additionally requires the critical components, config,
warehouse and provider, to be registered and healthy:

	metrics.SetVersion(version)
	metrics.RegisterComponent("config", true, "")
	metrics.RegisterComponent("warehouse", true, "")

	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

# Timing Operations

The Timer helper observes elapsed time into histograms:

	timer := metrics.NewTimer()
	runStage()
	timer.ObserveDurationVec(metrics.StageDuration, "extract")

Useful queries:

	rate(mds_trips_synced_total[1h])
	histogram_quantile(0.95, rate(mds_stage_duration_seconds_bucket[1d]))
	time() - mds_last_run_timestamp_seconds > 7200
*/
package metrics
