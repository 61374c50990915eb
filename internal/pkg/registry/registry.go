// Package registry keeps live push connections grouped by scope.
//
// Each scope (a board, a user) owns its own lock; there is no registry-wide
// lock, so traffic on one scope never contends with another.
package registry

import (
	"sort"
	"sync"
)

// Closer is the capability a registered handle must provide. Close must be
// idempotent and handles must be comparable (pointers in practice).
type Closer interface {
	Close()
}

type entry[C Closer] struct {
	seq    uint64
	handle C
}

type scope[C Closer] struct {
	mu      sync.Mutex
	entries map[string]*entry[C]
	seq     uint64
	// dead is set under mu when the scope is detached from the map; a
	// registrant that observes it must retry against a fresh scope.
	dead bool
}

// Registry maps a scope key to an insertion-ordered set of handles.
type Registry[K comparable, C Closer] struct {
	scopes sync.Map // K -> *scope[C]
	cap    int
}

// New creates a registry. A cap <= 0 means unbounded scopes.
func New[K comparable, C Closer](capPerScope int) *Registry[K, C] {
	return &Registry[K, C]{cap: capPerScope}
}

// Cap returns the per-scope connection limit (0 = unbounded).
func (r *Registry[K, C]) Cap() int {
	if r.cap < 0 {
		return 0
	}
	return r.cap
}

// Register adds handle under key. When the scope exceeds its cap the oldest
// handles are removed and closed. A re-registered id replaces the previous
// handle, which is closed. It returns the number of evicted handles.
func (r *Registry[K, C]) Register(key K, id string, handle C) int {
	var evicted []C
	for {
		actual, _ := r.scopes.LoadOrStore(key, &scope[C]{entries: make(map[string]*entry[C])})
		s := actual.(*scope[C])

		s.mu.Lock()
		if s.dead {
			s.mu.Unlock()
			continue
		}
		s.seq++
		if prev, ok := s.entries[id]; ok && any(prev.handle) != any(handle) {
			evicted = append(evicted, prev.handle)
		}
		s.entries[id] = &entry[C]{seq: s.seq, handle: handle}
		if r.cap > 0 {
			for len(s.entries) > r.cap {
				oldestID := oldest(s.entries)
				evicted = append(evicted, s.entries[oldestID].handle)
				delete(s.entries, oldestID)
			}
		}
		s.mu.Unlock()
		break
	}

	for _, h := range evicted {
		h.Close()
	}
	return len(evicted)
}

// Unregister removes id from key. It reports whether an entry was removed.
func (r *Registry[K, C]) Unregister(key K, id string) bool {
	return r.remove(key, id, nil)
}

// UnregisterHandle removes id only while it still maps to handle, so a stale
// cleanup cannot drop a newer registration that reused the id.
func (r *Registry[K, C]) UnregisterHandle(key K, id string, handle C) bool {
	return r.remove(key, id, func(current C) bool { return any(current) == any(handle) })
}

func (r *Registry[K, C]) remove(key K, id string, match func(C) bool) bool {
	actual, ok := r.scopes.Load(key)
	if !ok {
		return false
	}
	s := actual.(*scope[C])

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || (match != nil && !match(e.handle)) {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	if len(s.entries) == 0 && !s.dead {
		s.dead = true
		r.scopes.CompareAndDelete(key, s)
	}
	s.mu.Unlock()
	return true
}

// ForEach invokes fn for every handle registered under key, outside the scope
// lock. A handle for which fn returns an error is unregistered and closed.
// It returns the number of handles fn succeeded on.
func (r *Registry[K, C]) ForEach(key K, fn func(id string, handle C) error) int {
	snapshot := r.snapshot(key)
	delivered := 0
	for _, item := range snapshot {
		if err := fn(item.id, item.handle); err != nil {
			r.UnregisterHandle(key, item.id, item.handle)
			item.handle.Close()
			continue
		}
		delivered++
	}
	return delivered
}

type snapshotItem[C Closer] struct {
	id     string
	seq    uint64
	handle C
}

// snapshot copies the scope in insertion order.
func (r *Registry[K, C]) snapshot(key K) []snapshotItem[C] {
	actual, ok := r.scopes.Load(key)
	if !ok {
		return nil
	}
	s := actual.(*scope[C])

	s.mu.Lock()
	items := make([]snapshotItem[C], 0, len(s.entries))
	for id, e := range s.entries {
		items = append(items, snapshotItem[C]{id: id, seq: e.seq, handle: e.handle})
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	return items
}

// IDs returns the ids registered under key, oldest first.
func (r *Registry[K, C]) IDs(key K) []string {
	snapshot := r.snapshot(key)
	ids := make([]string, len(snapshot))
	for i, item := range snapshot {
		ids[i] = item.id
	}
	return ids
}

// Len returns the number of handles under key.
func (r *Registry[K, C]) Len(key K) int {
	actual, ok := r.scopes.Load(key)
	if !ok {
		return 0
	}
	s := actual.(*scope[C])
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Has reports whether key currently has a scope entry.
func (r *Registry[K, C]) Has(key K) bool {
	_, ok := r.scopes.Load(key)
	return ok
}

// Keys returns every scope key with at least one handle.
func (r *Registry[K, C]) Keys() []K {
	var keys []K
	r.scopes.Range(func(k, _ any) bool {
		keys = append(keys, k.(K))
		return true
	})
	return keys
}

// Total returns the number of handles across all scopes.
func (r *Registry[K, C]) Total() int {
	total := 0
	r.scopes.Range(func(_, v any) bool {
		s := v.(*scope[C])
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
		return true
	})
	return total
}

// CloseAll detaches and closes every handle.
func (r *Registry[K, C]) CloseAll() {
	r.scopes.Range(func(k, v any) bool {
		s := v.(*scope[C])
		s.mu.Lock()
		handles := make([]C, 0, len(s.entries))
		for _, e := range s.entries {
			handles = append(handles, e.handle)
		}
		s.entries = make(map[string]*entry[C])
		s.dead = true
		r.scopes.CompareAndDelete(k, s)
		s.mu.Unlock()

		for _, h := range handles {
			h.Close()
		}
		return true
	})
}

func oldest[C Closer](entries map[string]*entry[C]) string {
	var (
		oldestID  string
		oldestSeq uint64
		found     bool
	)
	for id, e := range entries {
		if !found || e.seq < oldestSeq {
			oldestID, oldestSeq, found = id, e.seq, true
		}
	}
	return oldestID
}
