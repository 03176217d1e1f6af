package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/events"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

// Waiter polls conditions with a timeout. The fakes are in-process, so
// the defaults are tight.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a waiter tuned for in-process fakes (5s
// timeout, 25ms interval).
func DefaultWaiter() *Waiter {
	return NewWaiter(5*time.Second, 25*time.Millisecond)
}

// WaitFor waits for a condition to become true.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if condition() {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForStatus waits for a schedule row to reach the given status.
func (w *Waiter) WaitForStatus(ctx context.Context, wh *Warehouse, scheduleID int, status types.Status) error {
	return w.WaitFor(ctx, func() bool {
		got, ok := wh.StatusOf(scheduleID)
		return ok && got == status
	}, fmt.Sprintf("schedule %d to reach status %d", scheduleID, int(status)))
}

// WaitForEvent drains the subscription until an event of the given type
// arrives. Events of other types are discarded.
func (w *Waiter) WaitForEvent(ctx context.Context, sub events.Subscriber, t events.EventType) (*events.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for %s event", t)
		case ev, ok := <-sub:
			if !ok {
				return nil, fmt.Errorf("subscription closed waiting for %s event", t)
			}
			if ev.Type == t {
				return ev, nil
			}
		}
	}
}
