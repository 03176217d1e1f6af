package metrics

import (
	"github.com/atd-dts/mds-ingest/pkg/events"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// Collector feeds pipeline events into the Prometheus metrics
type Collector struct {
	broker *events.Broker
	sub    events.Subscriber
	doneCh chan struct{}
}

// NewCollector creates a collector attached to the broker
func NewCollector(broker *events.Broker) *Collector {
	return &Collector{
		broker: broker,
		doneCh: make(chan struct{}),
	}
}

// Start subscribes to the broker and begins consuming events
func (c *Collector) Start() {
	c.sub = c.broker.Subscribe()
	go func() {
		defer close(c.doneCh)
		for event := range c.sub {
			c.handle(event)
		}
	}()
}

// Stop detaches the collector from the broker and waits for the
// consumer goroutine to drain its channel.
func (c *Collector) Stop() {
	if c.sub == nil {
		return
	}
	c.broker.Unsubscribe(c.sub)
	<-c.doneCh
}

func (c *Collector) handle(event *events.Event) {
	switch event.Type {
	case events.EventBlockStarted:
		BlocksInFlight.Inc()
	case events.EventBlockCompleted:
		BlocksInFlight.Dec()
		BlocksProcessed.WithLabelValues(event.Provider, event.Status.String()).Inc()
	case events.EventBlockSkipped:
		BlocksInFlight.Dec()
		BlocksSkipped.WithLabelValues(event.Provider).Inc()
	case events.EventStageCompleted:
		StagesTotal.WithLabelValues(string(event.Stage), "completed").Inc()
		StageDuration.WithLabelValues(string(event.Stage)).Observe(event.Duration.Seconds())
		c.observeStage(event)
	case events.EventStageFailed:
		StagesTotal.WithLabelValues(string(event.Stage), "failed").Inc()
		StageDuration.WithLabelValues(string(event.Stage)).Observe(event.Duration.Seconds())
	case events.EventRunCompleted:
		RunsTotal.WithLabelValues(event.Provider).Inc()
		RunDuration.Observe(event.Duration.Seconds())
		LastRunTimestamp.WithLabelValues(event.Provider).Set(float64(event.Timestamp.Unix()))
	}
}

// observeStage records the per stage trip counters for a completed stage.
func (c *Collector) observeStage(event *events.Event) {
	switch event.Stage {
	case types.StageExtract:
		TripsExtracted.WithLabelValues(event.Provider).Add(float64(event.Trips))
	case types.StageSyncDB:
		synced := event.Trips - event.Errors
		if synced > 0 {
			TripsSynced.WithLabelValues(event.Provider).Add(float64(synced))
		}
		if event.Errors > 0 {
			TripErrors.WithLabelValues(event.Provider).Add(float64(event.Errors))
		}
	case types.StageSyncSocrata:
		RowsPublished.WithLabelValues(event.Provider).Add(float64(event.Trips))
	}
}
