// Package domain is a small counter domain used by the es test suites.
package domain

import (
	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/assert"
)

const MaxCount = 24

type (
	Counter struct {
		ID             string `json:"id"`
		Counter        uint16 `json:"counter"`
		NumIncrements  int    `json:"num_increments"`
		NumResets      int    `json:"num_resets"`
		NumTotalEvents int    `json:"num_total_events"`
	}

	State = es.Maybe[Counter]

	Meta struct {
		Actor string `json:"actor"`
	}
)

// === Events ===

type (
	Event interface{ isCounterEvent() }

	Opened struct {
		ID string `json:"id"`
	}

	Incremented struct {
		Inc   uint8 `json:"inc,omitempty"`
		Reset bool  `json:"reset,omitempty"`
	}
)

func (Opened) EventType() string      { return "counter.opened" }
func (Incremented) EventType() string { return "counter.incremented" }
func (Opened) isCounterEvent()        {}
func (Incremented) isCounterEvent()   {}

func Registry() *es.EventRegistry {
	return es.NewRegistry(es.EventOf[Opened](), es.EventOf[Incremented]())
}

// === Commands ===

type (
	Command interface {
		es.Routed
		isCounterCommand()
	}

	Open struct {
		ID string
	}

	IncBy struct {
		ID      string
		By      uint8
		Version es.Version
	}

	Reset struct {
		ID      string
		Version es.Version
	}

	// IncAny increments without a version precondition.
	IncAny struct {
		ID string
		By uint8
	}
)

func StreamFor(id string) es.StreamID { return es.StreamID("counter-" + id) }

func (c Open) StreamID() es.StreamID               { return StreamFor(c.ID) }
func (c Open) ExpectedVersion() es.ExpectedVersion { return es.ExpectNoStream() }

func (c IncBy) StreamID() es.StreamID               { return StreamFor(c.ID) }
func (c IncBy) ExpectedVersion() es.ExpectedVersion { return es.ExpectExact(c.Version) }

func (c Reset) StreamID() es.StreamID               { return StreamFor(c.ID) }
func (c Reset) ExpectedVersion() es.ExpectedVersion { return es.ExpectExact(c.Version) }

func (c IncAny) StreamID() es.StreamID             { return StreamFor(c.ID) }
func (IncAny) ExpectedVersion() es.ExpectedVersion { return es.ExpectAny() }

func (Open) isCounterCommand()   {}
func (IncBy) isCounterCommand()  {}
func (Reset) isCounterCommand()  {}
func (IncAny) isCounterCommand() {}

// === Aggregate ===

type Agg struct{}

func (Agg) Init() State { return es.None[Counter]() }

func (Agg) Apply(s State, ev Event) State {
	switch e := ev.(type) {
	case Opened:
		return es.Some(Counter{ID: e.ID})
	case Incremented:
		c, ok := s.Get()
		if !ok {
			return s
		}
		c.NumTotalEvents++
		if e.Inc > 0 {
			c.Counter += uint16(e.Inc)
			c.NumIncrements++
		}
		if e.Reset {
			c.Counter = 0
			c.NumResets++
		}
		return es.Some(c)
	}
	return s
}

func (Agg) Execute(s State, cmd Command) ([]Event, error) {
	c, exists := s.Get()
	switch cmd := cmd.(type) {
	case Open:
		return es.Checked(assert.All(
			assert.False(exists, "counter already exists"),
			assert.True(cmd.ID != "", "id is empty"),
		), func() ([]Event, error) {
			return []Event{Opened{ID: cmd.ID}}, nil
		})
	case IncAny:
		return Agg{}.Execute(s, IncBy{ID: cmd.ID, By: cmd.By})
	case IncBy:
		return es.Checked(assert.All(
			assert.True(exists, "counter does not exist"),
			assert.True(cmd.By > 0, "increment must be positive"),
			assert.True(int(c.Counter)+int(cmd.By) <= MaxCount, "counter cannot exceed 24"),
		), func() ([]Event, error) {
			return []Event{Incremented{Inc: cmd.By}}, nil
		})
	case Reset:
		if !exists {
			return nil, es.Reject("counter does not exist")
		}
		if c.Counter == 0 {
			return nil, nil
		}
		return []Event{Incremented{Reset: true}}, nil
	}
	return nil, es.Reject("unknown command %T", cmd)
}

var _ es.Aggregate[State, Command, Event] = Agg{}

// NewStore returns an in-memory event store for the counter domain.
func NewStore() es.EventStore[Event, Meta] {
	return es.NewEventStore[Event, Meta](es.NewInMemoryStore(), Registry())
}
