// Package es is an event sourcing kernel: pure aggregates, a command
// pipeline with optimistic concurrency and the store ports behind it.
//
// # Aggregates
//
// An [Aggregate] is three pure functions over a state S, a command C and an
// event E. Init is the state before any event, Apply folds one event and
// Execute decides the events a command produces or rejects it with a
// [*ValidationError]. State is usually a [Maybe] so "does not exist yet" is
// explicit:
//
//	func (Aggregate) Execute(s State, cmd Command) ([]Event, error) {
//		p, ok := s.Get()
//		if !ok {
//			return nil, es.Reject("patient not found")
//		}
//		...
//	}
//
// # Command pipeline
//
// [Handle] reads a stream, folds it, executes the command and appends the
// decided events under the command's [ExpectedVersion]. A writer that lost
// the race gets [ErrConcurrencyConflict]; [RetryOnConflict] re-runs a command
// built from fresh state. [CommandHandler] adds a state cache so only events
// newer than the cached version are read, and [CommandHandler.OnAppended]
// hooks for synchronous projection.
//
// # Stores
//
// Backends implement [EnvelopeStore] over encoded [Envelope] records;
// [NewEventStore] decodes them into typed events through an [EventRegistry].
// [NewInMemoryStore] is the reference backend; adapters/sqlstore,
// adapters/bolt and adapters/nats persist. Every backend must pass
// estests.RunStoreSuite.
//
// Read models live in package proj.
package es
