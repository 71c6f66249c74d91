package run

import "sync"

// ActiveRuns is the set of runs currently being polled, keyed by threadID-runID.
type ActiveRuns struct {
	mu       sync.Mutex
	keys     map[string]struct{}
	onChange func(n int)
}

// NewActiveRuns returns an empty set. onChange, when non-nil, receives the size after each change.
func NewActiveRuns(onChange func(n int)) *ActiveRuns {
	return &ActiveRuns{keys: make(map[string]struct{}), onChange: onChange}
}

// Key builds the set key for a run.
func Key(threadID, runID string) string {
	return threadID + "-" + runID
}

// TryAcquire adds the run and reports whether it was absent.
func (a *ActiveRuns) TryAcquire(threadID, runID string) bool {
	key := Key(threadID, runID)
	a.mu.Lock()
	if _, ok := a.keys[key]; ok {
		a.mu.Unlock()
		return false
	}
	a.keys[key] = struct{}{}
	n := len(a.keys)
	a.mu.Unlock()
	a.notify(n)
	return true
}

// Release removes the run.
func (a *ActiveRuns) Release(threadID, runID string) {
	a.mu.Lock()
	delete(a.keys, Key(threadID, runID))
	n := len(a.keys)
	a.mu.Unlock()
	a.notify(n)
}

// Has reports whether the run is being polled.
func (a *ActiveRuns) Has(threadID, runID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.keys[Key(threadID, runID)]
	return ok
}

// Len returns the number of active runs.
func (a *ActiveRuns) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

func (a *ActiveRuns) notify(n int) {
	if a.onChange != nil {
		a.onChange(n)
	}
}
