package events

import (
	"sync"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/types"
)

// EventType represents the type of pipeline event
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventRunCompleted   EventType = "run.completed"
	EventBlockStarted   EventType = "block.started"
	EventBlockCompleted EventType = "block.completed"
	EventBlockSkipped   EventType = "block.skipped"
	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"
)

// Event represents one pipeline observation
type Event struct {
	Type       EventType
	Timestamp  time.Time
	Provider   string
	ScheduleID int
	Block      string
	Stage      types.Stage
	Status     types.Status
	Message    string
	Trips      int
	Errors     int
	Duration   time.Duration
}

// StageEvent builds a stage-scoped event from a stage result.
func StageEvent(t EventType, provider string, block types.ScheduleBlock, res types.StageResult) *Event {
	return &Event{
		Type:       t,
		Provider:   provider,
		ScheduleID: block.ScheduleID,
		Block:      block.Tag(),
		Stage:      res.Stage,
		Status:     res.Status,
		Message:    res.Message,
		Trips:      res.Total,
		Errors:     res.Errors,
		Duration:   res.Duration,
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers. Publishing never
// blocks: when the queue is full or nothing is draining it, the event
// is dropped.
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
