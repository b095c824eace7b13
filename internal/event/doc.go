/*
Package event provides a type-safe pub/sub event system for the
waveline server.

The event system enables decoupled communication between components:
publishers emit events and subscribers react to them without direct
dependencies. It is built on top of watermill's gochannel for
infrastructure while maintaining direct-call semantics to preserve type
information.

# Event Types

Session Events:
  - session.created: New session created
  - session.updated: Session received new entries

MCP Events:
  - mcp.server.state: Server connection state transition

Hook and Gate Events:
  - hook.completed: Hook command finished with a decision
  - gate.resolved: Gate checkpoint passed or failed

Wave Events:
  - wave.started: Wave began executing
  - wave.completed: Wave finished
  - task.completed: Single task within a wave finished
  - run.completed: Whole playbook run finished

Sync Events:
  - sync.completed: Repository sync operation finished

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: session},
	})

	// Synchronous publishing (blocks until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.GateResolved,
		Data: event.GateResolvedData{Gate: "tests", Passed: true},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.SessionCreated, func(e event.Event) {
		data := e.Data.(event.SessionCreatedData)
		logging.Info().Str("id", data.Info.ID).Msg("session created")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("type", string(e.Type)).Msg("event")
	})
	defer unsubscribe()

# Subscriber Safety

When using PublishSync, subscribers run in the publisher's goroutine.
To avoid blocking or deadlocks, subscribers must complete quickly, use
non-blocking channel sends, and never publish re-entrantly or acquire
locks the publisher might hold.

# Custom Event Bus

For testing or isolation, create dedicated bus instances:

	bus := event.NewBus()
	defer bus.Close()

The global bus can be cleared between tests with event.Reset().
*/
package event
