// Package tracker keeps, for each tracked call state, the set of phone
// numbers currently in that state.
package tracker

import (
	"sort"
	"sync"

	"callaudio/call"
)

// tracked lists the categories in a stable order.
var tracked = []call.State{
	call.StateDialing,
	call.StateAlerting,
	call.StateIncoming,
	call.StateActive,
	call.StateHolding,
}

// Tracker is the per-state number bookkeeping. A number lives in at most
// one set: AddCall removes it from any other set first.
type Tracker struct {
	mu   sync.RWMutex
	sets map[call.State]map[string]struct{}
}

// New returns an empty Tracker.
func New() *Tracker {
	t := &Tracker{sets: make(map[call.State]map[string]struct{}, len(tracked))}
	for _, s := range tracked {
		t.sets[s] = make(map[string]struct{})
	}
	return t
}

// AddCall inserts number under state. Untracked states are ignored.
func (t *Tracker) AddCall(number string, state call.State) bool {
	state, ok := state.Tracked()
	if !ok || number == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for s, set := range t.sets {
		if s != state {
			delete(set, number)
		}
	}
	t.sets[state][number] = struct{}{}
	return true
}

// DeleteCall removes number from state if present.
func (t *Tracker) DeleteCall(number string, state call.State) bool {
	state, ok := state.Tracked()
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.sets[state]
	if _, ok := set[number]; !ok {
		return false
	}
	delete(set, number)
	return true
}

// GetCallCount returns the size of the set for state.
func (t *Tracker) GetCallCount(state call.State) int {
	state, ok := state.Tracked()
	if !ok {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sets[state])
}

// Contains reports whether number is tracked under state.
func (t *Tracker) Contains(number string, state call.State) bool {
	state, ok := state.Tracked()
	if !ok {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, found := t.sets[state][number]
	return found
}

// ShouldSwitchState reports whether exactly one call is in state and no
// active call pre-empts it.
func (t *Tracker) ShouldSwitchState(state call.State) bool {
	state, ok := state.Tracked()
	if !ok {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.sets[state]) != 1 {
		return false
	}
	switch state {
	case call.StateDialing, call.StateAlerting, call.StateIncoming, call.StateHolding:
		return len(t.sets[call.StateActive]) == 0
	default:
		return true
	}
}

// GetCurrentActiveCall returns the lowest active number, or "" when no
// call is active.
func (t *Tracker) GetCurrentActiveCall() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.sets[call.StateActive]
	if len(set) == 0 {
		return ""
	}
	numbers := make([]string, 0, len(set))
	for n := range set {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)
	return numbers[0]
}

// UpdateNeeded picks the state the scene should fall back to once the
// active set is empty: holding, incoming, dialing, alerting in that order.
// ok is false when every set is empty.
func (t *Tracker) UpdateNeeded() (call.State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range []call.State{call.StateHolding, call.StateIncoming, call.StateDialing, call.StateAlerting} {
		if len(t.sets[s]) > 0 {
			return s, true
		}
	}
	return call.StateIdle, false
}

// HasCalls reports whether any set is non-empty.
func (t *Tracker) HasCalls() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, set := range t.sets {
		if len(set) > 0 {
			return true
		}
	}
	return false
}
