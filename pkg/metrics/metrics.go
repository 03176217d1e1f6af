package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	BlocksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mds_blocks_in_flight",
			Help: "Number of schedule blocks currently being processed",
		},
	)

	BlocksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_blocks_processed_total",
			Help: "Total schedule blocks processed by provider and final status",
		},
		[]string{"provider", "status"},
	)

	BlocksSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_blocks_skipped_total",
			Help: "Total schedule blocks skipped because their status did not match the stage precondition",
		},
		[]string{"provider"},
	)

	// Stage metrics
	StagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_stages_total",
			Help: "Total stage executions by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mds_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// Trip metrics
	TripsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_trips_extracted_total",
			Help: "Total trips fetched from provider feeds",
		},
		[]string{"provider"},
	)

	TripsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_trips_synced_total",
			Help: "Total trips written to the warehouse",
		},
		[]string{"provider"},
	)

	TripErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_trip_errors_total",
			Help: "Total trips rejected during warehouse sync",
		},
		[]string{"provider"},
	)

	RowsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_socrata_rows_total",
			Help: "Total rows upserted into the open data portal",
		},
		[]string{"provider"},
	)

	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_runs_total",
			Help: "Total pipeline runs by provider",
		},
		[]string{"provider"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mds_run_duration_seconds",
			Help:    "End to end pipeline run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	LastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mds_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed run by provider",
		},
		[]string{"provider"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(BlocksInFlight)
	prometheus.MustRegister(BlocksProcessed)
	prometheus.MustRegister(BlocksSkipped)
	prometheus.MustRegister(StagesTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(TripsExtracted)
	prometheus.MustRegister(TripsSynced)
	prometheus.MustRegister(TripErrors)
	prometheus.MustRegister(RowsPublished)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(LastRunTimestamp)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
