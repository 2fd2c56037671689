// Package metrics holds the instrument types the es kernel reports through,
// so core packages stay free of any metrics backend.
package metrics

// Timer measures one operation from its creation until ObserveDuration.
//
//	defer m.HandleDuration("patient").ObserveDuration()
type Timer interface {
	ObserveDuration()
}

// TimerFunc adapts a function to Timer.
type TimerFunc func()

func (f TimerFunc) ObserveDuration() { f() }

// NopTimer returns a Timer that records nothing.
func NopTimer() Timer { return TimerFunc(func() {}) }
