package mock

import (
	"sync"

	"gitlab.com/navcheck/navcheck"
)

// OutcomeStore records outcomes in memory
type OutcomeStore struct {
	mu       sync.Mutex
	Outcomes []*navcheck.NavigationOutcome

	InitFn     func() error
	InitCalled bool

	AddOutcomeFn     func(outcome *navcheck.NavigationOutcome) error
	AddOutcomeCalled bool

	CloseFn     func() error
	CloseCalled bool
}

// Init the outcome store
func (s *OutcomeStore) Init() error {
	s.InitCalled = true
	return s.InitFn()
}

// AddOutcome to the store
func (s *OutcomeStore) AddOutcome(outcome *navcheck.NavigationOutcome) error {
	s.mu.Lock()
	s.AddOutcomeCalled = true
	s.Outcomes = append(s.Outcomes, outcome)
	s.mu.Unlock()
	return s.AddOutcomeFn(outcome)
}

// Close the outcome store
func (s *OutcomeStore) Close() error {
	s.CloseCalled = true
	return s.CloseFn()
}

// MakeMockOutcomeStore that accepts everything
func MakeMockOutcomeStore() *OutcomeStore {
	s := &OutcomeStore{}
	s.InitFn = func() error {
		return nil
	}
	s.AddOutcomeFn = func(outcome *navcheck.NavigationOutcome) error {
		return nil
	}
	s.CloseFn = func() error {
		return nil
	}
	return s
}
