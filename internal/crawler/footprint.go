package crawler

import (
	"sync"

	"redfish-mockup-creator/pkg/types"
)

// Footprint tracks every reference seen during a run so each resource is
// requested at most once. Entries are never removed.
type Footprint struct {
	mu      sync.RWMutex
	entries map[string]types.VisitState
}

// NewFootprint returns an empty visited set.
func NewFootprint() *Footprint {
	return &Footprint{entries: make(map[string]types.VisitState)}
}

// Claim records ref as being fetched. It reports false when the reference
// was already claimed, whatever its current state.
func (f *Footprint) Claim(ref types.Reference) bool {
	key := ref.Key()
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[key]; ok {
		return false
	}
	f.entries[key] = types.StateFetching
	return true
}

// MarkMaterialized records a completed visit.
func (f *Footprint) MarkMaterialized(ref types.Reference) {
	f.set(ref, types.StateMaterialized)
}

// MarkFailed records a visit that will not be retried.
func (f *Footprint) MarkFailed(ref types.Reference) {
	f.set(ref, types.StateFetchFailed)
}

func (f *Footprint) set(ref types.Reference, state types.VisitState) {
	f.mu.Lock()
	f.entries[ref.Key()] = state
	f.mu.Unlock()
}

// State returns the state of uri, StateUnvisited when never claimed.
func (f *Footprint) State(uri string) types.VisitState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	state, ok := f.entries[types.CanonicalKey(uri)]
	if !ok {
		return types.StateUnvisited
	}
	return state
}

// Len returns the number of distinct references seen.
func (f *Footprint) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
