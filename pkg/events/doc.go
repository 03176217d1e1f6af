/*
Package events provides an in-memory event broker for pipeline pub/sub
messaging.

The broker broadcasts run, block and stage observations to interested
subscribers, decoupling the orchestrator from everything that watches a
run: the metrics collector, log streaming, and tests that assert on
pipeline behavior without reaching into its internals.

# Architecture

Publishing is non-blocking. Events flow through a buffered channel
(100 events) into a broadcast loop that fans out to per-subscriber
buffered channels (50 events each). A subscriber that falls behind
misses events rather than stalling the pipeline.

Event types follow the run hierarchy:

	run.started / run.completed        one pair per orchestrator run
	block.started / block.completed    one pair per schedule block
	block.skipped                      preconditions not met
	stage.started / stage.completed    one pair per executed stage
	stage.failed                       stage error or failure status

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s %s\n", event.Type, event.Provider, event.Block)
		}
	}()

	broker.Publish(&events.Event{
		Type:     events.EventBlockStarted,
		Provider: "sample_co",
		Block:    "2020-1-1-1",
	})
*/
package events
