package store

import (
	"sync"

	"git.home.luguber.info/inful/docscope/internal/util/sets"
)

// Tracker records which cached entries depend on which others, as weak edges
// by key. It owns only edges, never values: the Store stays the single source
// of truth for content. Edges for a dependent are recomputed wholesale each
// time that dependent is reprocessed, so removed embeds stop triggering
// invalidation.
type Tracker struct {
	mu sync.Mutex
	// forward: dependent -> its dependencies
	forward map[string]sets.Set[string]
	// reverse: dependency -> entries that depend on it
	reverse map[string]sets.Set[string]
}

// NewTracker creates an empty dependency tracker.
func NewTracker() *Tracker {
	return &Tracker{
		forward: make(map[string]sets.Set[string]),
		reverse: make(map[string]sets.Set[string]),
	}
}

// Begin clears all previously recorded edges for dependent. Called at the
// start of each reprocessing pass (stale-edge garbage collection).
func (t *Tracker) Begin(dependent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for dep := range t.forward[dependent] {
		if rev, ok := t.reverse[dep]; ok {
			rev.Delete(dependent)
			if len(rev) == 0 {
				delete(t.reverse, dep)
			}
		}
	}
	delete(t.forward, dependent)
}

// Record adds one dependency edge.
func (t *Tracker) Record(dependent, dependency string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fwd, ok := t.forward[dependent]
	if !ok {
		fwd = sets.New[string]()
		t.forward[dependent] = fwd
	}
	fwd.Add(dependency)

	rev, ok := t.reverse[dependency]
	if !ok {
		rev = sets.New[string]()
		t.reverse[dependency] = rev
	}
	rev.Add(dependent)
}

// DependentsOf returns the keys that directly depend on key.
func (t *Tracker) DependentsOf(key string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	rev, ok := t.reverse[key]
	if !ok {
		return nil
	}
	return sets.Sorted(rev)
}
