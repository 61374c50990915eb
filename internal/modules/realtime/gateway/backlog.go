package gateway

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Backlog keeps the most recent envelopes per scope so a reconnecting client
// can resume after its Last-Event-ID. A nil *Backlog disables replay.
type Backlog struct {
	size  int
	clock clockwork.Clock
	rings sync.Map // int64 -> *ring
}

type ring struct {
	mu       sync.Mutex
	events   []Envelope
	lastUsed time.Time
	dead     bool
}

// NewBacklog returns nil when size <= 0.
func NewBacklog(size int, clock clockwork.Clock) *Backlog {
	if size <= 0 {
		return nil
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Backlog{size: size, clock: clock}
}

// Size returns the per-scope capacity.
func (b *Backlog) Size() int {
	if b == nil {
		return 0
	}
	return b.size
}

func (b *Backlog) lock(scopeID int64) *ring {
	for {
		actual, _ := b.rings.LoadOrStore(scopeID, &ring{})
		r := actual.(*ring)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		r.lastUsed = b.clock.Now()
		return r
	}
}

// record appends env and runs deliver while the scope is held, so a
// concurrent resume sees the event either in its replay or live, never both.
func (b *Backlog) record(scopeID int64, env Envelope, deliver func()) {
	if b == nil {
		deliver()
		return
	}
	r := b.lock(scopeID)
	defer r.mu.Unlock()

	r.events = append(r.events, env)
	if over := len(r.events) - b.size; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
	deliver()
}

// resume computes the envelopes after lastEventID and runs attach with them
// while the scope is held. An unknown id yields no replay.
func (b *Backlog) resume(scopeID int64, lastEventID string, attach func(missed []Envelope)) {
	if b == nil || lastEventID == "" {
		attach(nil)
		return
	}
	r := b.lock(scopeID)
	defer r.mu.Unlock()

	var missed []Envelope
	for i, env := range r.events {
		if env.EventID == lastEventID {
			missed = append(missed, r.events[i+1:]...)
			break
		}
	}
	attach(missed)
}

// Prune drops scopes idle for longer than maxAge. It returns the number of
// scopes removed.
func (b *Backlog) Prune(maxAge time.Duration) int {
	if b == nil {
		return 0
	}
	cutoff := b.clock.Now().Add(-maxAge)
	removed := 0
	b.rings.Range(func(k, v any) bool {
		r := v.(*ring)
		r.mu.Lock()
		if !r.dead && r.lastUsed.Before(cutoff) {
			r.dead = true
			b.rings.CompareAndDelete(k, r)
			removed++
		}
		r.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of buffered envelopes for a scope.
func (b *Backlog) Len(scopeID int64) int {
	if b == nil {
		return 0
	}
	actual, ok := b.rings.Load(scopeID)
	if !ok {
		return 0
	}
	r := actual.(*ring)
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
