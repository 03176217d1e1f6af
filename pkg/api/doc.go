/*
Package api serves the ops endpoints of a pipeline run.

The run tool starts this listener when the settings document carries a
METRICS_LISTEN address, so a containerized run can be probed and scraped
while it works:

	/health    overall component health, 503 when any component is down
	/ready     critical components only: config, warehouse, provider
	/live      process liveness, always 200
	/metrics   Prometheus metrics

The handlers come from pkg/metrics; component states are pushed there by
the health registry. The server holds no pipeline state of its own.
*/
package api
