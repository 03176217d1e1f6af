package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/atd-dts/mds-ingest/pkg/provider"
)

// TripCollector accumulates extracted trips across the blocks of a run
// for commands that also write a local file. It is safe for concurrent
// workers.
type TripCollector struct {
	mu    sync.Mutex
	trips []map[string]any
}

// NewTripCollector creates an empty collector.
func NewTripCollector() *TripCollector {
	return &TripCollector{}
}

// Add appends one extracted batch.
func (c *TripCollector) Add(batch []map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trips = append(c.trips, batch...)
}

// Count returns the number of collected trips.
func (c *TripCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.trips)
}

// WriteFile writes the collected trips to path in the provider envelope
// shape, the same document layout the object store holds, so the file
// feeds straight into the validate command.
func (c *TripCollector) WriteFile(path string) error {
	c.mu.Lock()
	trips := make([]map[string]any, len(c.trips))
	copy(trips, c.trips)
	c.mu.Unlock()

	envelope := provider.Envelope{Data: provider.TripPayload{Trips: trips}}
	body, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize collected trips: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
