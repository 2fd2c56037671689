package es

import (
	"github.com/codewandler/esk/core/es/assert"
)

// Aggregate is the decision logic of an event-sourced entity.
//
// Init returns the state of an entity before any event. Apply folds one event
// onto a state; it is pure and total, so an event that does not fit the state
// leaves it in a safe shape rather than failing. Execute decides the events a
// command produces against the current state and must be deterministic. It
// returns a *ValidationError when the command is rejected.
type Aggregate[S, C, E any] interface {
	Init() S
	Apply(state S, event E) S
	Execute(state S, cmd C) ([]E, error)
}

// Fold applies events in order onto state.
func Fold[S, C, E, M any](agg Aggregate[S, C, E], state S, events []EventRead[E, M]) S {
	for _, ev := range events {
		state = agg.Apply(state, ev.Data)
	}
	return state
}

// FoldData applies bare payloads in order onto state.
func FoldData[S, C, E any](agg Aggregate[S, C, E], state S, events []E) S {
	for _, ev := range events {
		state = agg.Apply(state, ev)
	}
	return state
}

// Checked runs then when every condition holds and turns the first failed
// condition into a *ValidationError.
func Checked[E any](c assert.Cond, then func() ([]E, error)) ([]E, error) {
	if err := c.Check(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return then()
}
