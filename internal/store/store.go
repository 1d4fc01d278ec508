// Package store is the in-memory keyed cache of parsed documents, fragments,
// and reference tables, with dependency-aware invalidation. Entries are
// immutable values shared by reference; there is no defensive copying and no
// persistence beyond the process lifetime.
package store

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/docscope/internal/logfields"
)

// Loader computes the value for a key on cache miss.
type Loader func(ctx context.Context) (any, error)

// Entry is one cached value. Fingerprint identifies the exact content the
// value was computed from; writers compare it to reject stale output.
type Entry struct {
	Key         string
	Value       any
	Fingerprint string
}

// Store memoizes loader results per key. Concurrent misses on the same key
// are deduplicated: the second caller awaits the first computation instead of
// recomputing. Loader failures are never cached; a later Get retries.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	flight  singleflight.Group
	tracker *Tracker
	logger  *slog.Logger
}

// New creates an empty store wired to the given tracker.
func New(tracker *Tracker) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		tracker: tracker,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// Tracker returns the dependency tracker backing this store.
func (s *Store) Tracker() *Tracker { return s.tracker }

// Get returns the cached entry for key, computing it via load on miss.
func (s *Store) Get(ctx context.Context, key string, load Loader) (*Entry, error) {
	s.mu.RLock()
	if e, ok := s.entries[key]; ok {
		s.mu.RUnlock()
		return e, nil
	}
	s.mu.RUnlock()

	v, err, shared := s.flight.Do(key, func() (any, error) {
		// Re-check: an invalidate+get race may have repopulated the entry
		// between the read-lock miss and singleflight admission.
		s.mu.RLock()
		if e, ok := s.entries[key]; ok {
			s.mu.RUnlock()
			return e, nil
		}
		s.mu.RUnlock()

		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		e := &Entry{Key: key, Value: value, Fingerprint: fingerprintOf(value)}
		s.mu.Lock()
		s.entries[key] = e
		s.mu.Unlock()
		return e, nil
	})
	if err != nil {
		// Failures must not stick: drop the flight so the next Get retries.
		s.flight.Forget(key)
		return nil, err
	}
	if shared {
		s.logger.Debug("Deduplicated concurrent load", logfields.Path(key))
	}
	return v.(*Entry), nil
}

// Peek returns the cached entry without computing, or nil.
func (s *Store) Peek(key string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

// Invalidate removes the entry for key and cascades through every recorded
// dependent. The dependency graph is a DAG by construction (fragments cannot
// embed documents or other fragments), so the recursion is bounded.
// Returns every key invalidated, including key itself.
func (s *Store) Invalidate(key string) []string {
	seen := make(map[string]bool)
	var order []string
	var walk func(k string)
	walk = func(k string) {
		if seen[k] {
			return
		}
		seen[k] = true
		s.mu.Lock()
		_, had := s.entries[k]
		delete(s.entries, k)
		s.mu.Unlock()
		s.flight.Forget(k)
		if had {
			order = append(order, k)
		} else if k == key {
			order = append(order, k)
		}
		for _, dep := range s.tracker.DependentsOf(k) {
			walk(dep)
		}
	}
	walk(key)
	s.logger.Debug("Invalidated cache entries", logfields.Path(key), logfields.Count(len(order)))
	return order
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// fingerprinter is implemented by cached values that carry a canonical
// content hash (documents and fragments do).
type fingerprinter interface{ ContentFingerprint() string }

func fingerprintOf(v any) string {
	if f, ok := v.(fingerprinter); ok {
		return f.ContentFingerprint()
	}
	return ""
}
