package presence

import (
	"context"
	"sync"
	"time"
)

// Store persists presence sessions. Sessions last seen before cutoff are
// expired; a Store drops them whenever it touches the user.
type Store interface {
	// Save writes r for userID. A session that is new to the user evicts
	// the least recently seen one once maxSessions are live.
	Save(ctx context.Context, userID int64, r Record, cutoff time.Time, maxSessions int, ttl time.Duration) error
	Delete(ctx context.Context, userID int64, sessionID string) (bool, error)
	// Load returns the user's live sessions.
	Load(ctx context.Context, userID int64, cutoff time.Time) ([]Record, error)
	// Prune drops expired sessions of every user and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	// Users counts users with at least one stored session.
	Users(ctx context.Context) (int, error)
}

type userSessions struct {
	mu       sync.Mutex
	sessions map[string]Record
	dead     bool
}

// MemoryStore keeps sessions in process. Each user has an independent lock.
type MemoryStore struct {
	users sync.Map // int64 -> *userSessions
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) lock(userID int64) *userSessions {
	for {
		actual, _ := m.users.LoadOrStore(userID, &userSessions{sessions: make(map[string]Record)})
		us := actual.(*userSessions)
		us.mu.Lock()
		if us.dead {
			us.mu.Unlock()
			continue
		}
		return us
	}
}

func (m *MemoryStore) existing(userID int64) (*userSessions, bool) {
	actual, ok := m.users.Load(userID)
	if !ok {
		return nil, false
	}
	us := actual.(*userSessions)
	us.mu.Lock()
	if us.dead {
		us.mu.Unlock()
		return nil, false
	}
	return us, true
}

func (m *MemoryStore) purgeLocked(userID int64, us *userSessions, cutoff time.Time) int {
	removed := 0
	for id, r := range us.sessions {
		if r.LastSeenAt.Before(cutoff) {
			delete(us.sessions, id)
			removed++
		}
	}
	m.detachIfEmptyLocked(userID, us)
	return removed
}

func (m *MemoryStore) detachIfEmptyLocked(userID int64, us *userSessions) {
	if len(us.sessions) == 0 && !us.dead {
		us.dead = true
		m.users.CompareAndDelete(userID, us)
	}
}

func (m *MemoryStore) Save(_ context.Context, userID int64, r Record, cutoff time.Time, maxSessions int, _ time.Duration) error {
	us := m.lock(userID)
	defer us.mu.Unlock()

	for id, existing := range us.sessions {
		if existing.LastSeenAt.Before(cutoff) {
			delete(us.sessions, id)
		}
	}
	if _, ok := us.sessions[r.SessionID]; !ok {
		for len(us.sessions) >= maxSessions {
			delete(us.sessions, oldestSession(us.sessions))
		}
	}
	us.sessions[r.SessionID] = r
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64, sessionID string) (bool, error) {
	us, ok := m.existing(userID)
	if !ok {
		return false, nil
	}
	defer us.mu.Unlock()

	if _, ok := us.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(us.sessions, sessionID)
	m.detachIfEmptyLocked(userID, us)
	return true, nil
}

func (m *MemoryStore) Load(_ context.Context, userID int64, cutoff time.Time) ([]Record, error) {
	us, ok := m.existing(userID)
	if !ok {
		return nil, nil
	}
	defer us.mu.Unlock()

	m.purgeLocked(userID, us, cutoff)
	out := make([]Record, 0, len(us.sessions))
	for _, r := range us.sessions {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	m.users.Range(func(k, v any) bool {
		us := v.(*userSessions)
		us.mu.Lock()
		if !us.dead {
			removed += m.purgeLocked(k.(int64), us, cutoff)
		}
		us.mu.Unlock()
		return true
	})
	return removed, nil
}

func (m *MemoryStore) Users(context.Context) (int, error) {
	n := 0
	m.users.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n, nil
}

func oldestSession(sessions map[string]Record) string {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, r := range sessions {
		if oldestID == "" || r.LastSeenAt.Before(oldestAt) {
			oldestID, oldestAt = id, r.LastSeenAt
		}
	}
	return oldestID
}
