// Package scenario defines the identity of the active data scenario.
//
// The scenario engine that mutates fixture records lives outside fixturekit;
// the resilience layer only needs to know which scenario is active so that
// cached responses are partitioned by it. Switching the scenario name or seed
// makes every previously cached response unreachable without a flush.
package scenario

import (
	"fmt"
	"sync/atomic"
)

// Scenario is the opaque identity of the active scenario.
type Scenario struct {
	Name string `json:"name"`
	Seed int64  `json:"seed"`
}

// String formats the scenario as name#seed.
func (s Scenario) String() string {
	return fmt.Sprintf("%s#%d", s.Name, s.Seed)
}

// Provider supplies the current scenario. Implementations must be safe for
// concurrent use.
type Provider interface {
	Current() Scenario
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() Scenario

// Current calls f.
func (f ProviderFunc) Current() Scenario { return f() }

// Static always returns the same scenario.
type Static Scenario

// Current returns the fixed scenario.
func (s Static) Current() Scenario { return Scenario(s) }

// Switch holds a scenario that can be replaced at runtime.
type Switch struct {
	current atomic.Pointer[Scenario]
}

// NewSwitch creates a Switch starting at initial.
func NewSwitch(initial Scenario) *Switch {
	s := &Switch{}
	s.Set(initial)
	return s
}

// Current returns the active scenario.
func (s *Switch) Current() Scenario {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return Scenario{}
}

// Set replaces the active scenario and returns the previous one.
func (s *Switch) Set(next Scenario) Scenario {
	prev := s.current.Swap(&next)
	if prev == nil {
		return Scenario{}
	}
	return *prev
}
