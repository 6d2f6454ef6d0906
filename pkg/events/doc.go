/*
Package events provides the in-memory broker the engine uses to notify
consumers about project state changes.

The broker is topic-agnostic: every subscriber sees every event and filters
by Type. Publishing never blocks the caller; a subscriber whose buffer is
full misses events rather than stalling the engine, which is acceptable
because every notification is a hint to re-read state, not the state itself.

# Event Types

  - project.changed: a project's containers changed outside or after an
    operation; consumers should re-read discovery state
  - discovery.refreshed: a full snapshot refresh completed
  - operation.started / operation.completed / operation.failed: lifecycle
    of a mutating compose verb
  - daemon.disconnected / daemon.reconnected: Docker event stream health

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()
*/
package events
