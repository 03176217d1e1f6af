package events

import (
	"testing"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/types"
)

func waitEvent(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

// TestBrokerFanOut tests that one published event reaches every subscriber
func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	first := b.Subscribe()
	second := b.Subscribe()
	if b.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.SubscriberCount())
	}

	b.Publish(&Event{Type: EventRunStarted, Provider: "fanout_co"})

	for _, sub := range []Subscriber{first, second} {
		ev := waitEvent(t, sub)
		if ev.Type != EventRunStarted || ev.Provider != "fanout_co" {
			t.Errorf("unexpected event %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("expected publish to stamp the event")
		}
	}
}

// TestBrokerUnsubscribe tests that a removed subscriber's channel closes
func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
	if _, open := <-sub; open {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

// TestBrokerPublishNeverBlocks tests overflow behavior with no consumer
func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	// Never started: nothing drains the queue.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventBlockStarted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with a full queue")
	}
}

// TestBrokerSlowSubscriber tests that a full subscriber does not stall others
func TestBrokerSlowSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	fast := b.Subscribe()

	// Overrun the slow subscriber's buffer while the fast one drains.
	for i := 0; i < 60; i++ {
		b.Publish(&Event{Type: EventStageStarted, ScheduleID: i})
		waitEvent(t, fast)
	}

	if len(slow) != cap(slow) {
		t.Errorf("expected slow subscriber buffer to be full, got %d of %d", len(slow), cap(slow))
	}
}

func TestStageEvent(t *testing.T) {
	block := types.ScheduleBlock{ScheduleID: 42, Year: 2020, Month: 1, Day: 1, Hour: 3}
	res := types.StageResult{
		Stage:    types.StageSyncDB,
		Status:   types.StatusSyncedPartial,
		Message:  "partial",
		Total:    10,
		Errors:   3,
		Duration: time.Second,
	}

	ev := StageEvent(EventStageCompleted, "stage_co", block, res)
	if ev.ScheduleID != 42 || ev.Block != block.Tag() {
		t.Errorf("unexpected block identity: %+v", ev)
	}
	if ev.Stage != types.StageSyncDB || ev.Status != types.StatusSyncedPartial {
		t.Errorf("unexpected stage fields: %+v", ev)
	}
	if ev.Trips != 10 || ev.Errors != 3 || ev.Duration != time.Second {
		t.Errorf("unexpected tallies: %+v", ev)
	}
}
