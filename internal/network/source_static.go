package network

import (
	"context"
	"sync"
	"time"
)

// StaticSource reports a state set by the caller. Used by tests and by posctl sync --force.
type StaticSource struct {
	mu     sync.Mutex
	state  State
	err    error
	events chan State
}

// NewStaticSource creates a source reporting initial
func NewStaticSource(initial State) *StaticSource {
	return &StaticSource{state: initial, events: make(chan State, 1)}
}

// Check returns the current state, or the configured error
func (s *StaticSource) Check(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return State{}, s.err
	}
	return s.state, nil
}

// Events delivers states passed to Set
func (s *StaticSource) Events() <-chan State {
	return s.events
}

// Set replaces the state and pushes it to the event channel
func (s *StaticSource) Set(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	publish(s.events, state)
}

// SetOnline is shorthand for a connected, reachable or disconnected state
func (s *StaticSource) SetOnline(online bool) {
	if online {
		s.Set(State{Connected: true, InternetReachable: Reachable(true), Type: TypeUnknown, CheckedAt: time.Now()})
		return
	}
	s.Set(offlineState(time.Now()))
}

// SetError makes subsequent checks fail with err; nil clears it
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
