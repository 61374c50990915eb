// Package presence remembers what each signed-in client session is looking
// at, so redundant unread-count pushes can be skipped.
//
// Files:
//   - types.go: view types, update and record shapes
//   - tracker.go: TTL and suppression rules over a Store
//   - store.go: Store interface and the in-process store
//   - redis_store.go: shared store for multi-instance deployments
//   - handler.go: heartbeat and detach endpoints
package presence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tracker applies the heartbeat TTL and the suppression rule. Expiry is
// evaluated on every read; Sweep only reclaims memory.
type Tracker struct {
	store       Store
	ttl         time.Duration
	maxSessions int
	clock       clockwork.Clock
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

func WithMaxSessions(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxSessions = n
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithStore replaces the default in-process store.
func WithStore(s Store) Option {
	return func(t *Tracker) {
		if s != nil {
			t.store = s
		}
	}
}

// NewTracker creates a tracker with a 45s TTL, 8 sessions per user and an
// in-process store.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		ttl:         DefaultTTL,
		maxSessions: DefaultMaxSessions,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.store == nil {
		t.store = NewMemoryStore()
	}
	return t
}

// TTL returns the heartbeat lifetime.
func (t *Tracker) TTL() time.Duration { return t.ttl }

// cutoff is the oldest heartbeat still considered live.
func (t *Tracker) cutoff() time.Time {
	return t.clock.Now().Add(-t.ttl)
}

// Upsert records a heartbeat. The latest update for a session wins.
func (t *Tracker) Upsert(ctx context.Context, userID int64, u Update) (Record, error) {
	sessionID := strings.TrimSpace(u.SessionID)
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		return Record{}, fmt.Errorf("%w: sessionId is required (max %d chars)", ErrInvalidPresence, maxSessionIDLength)
	}
	if !u.ViewType.Valid() {
		return Record{}, fmt.Errorf("%w: unknown viewType %q", ErrInvalidPresence, u.ViewType)
	}

	now := t.clock.Now()
	record := Record{
		SessionID:             sessionID,
		ViewType:              u.ViewType,
		NotificationPanelOpen: u.NotificationPanelOpen,
		LastSeenAt:            now,
	}
	if u.ArticleID != nil {
		id := *u.ArticleID
		record.ArticleID = &id
	}

	if err := t.store.Save(ctx, userID, record, now.Add(-t.ttl), t.maxSessions, t.ttl); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Remove detaches a session immediately. Unknown sessions are ignored.
func (t *Tracker) Remove(ctx context.Context, userID int64, sessionID string) (bool, error) {
	return t.store.Delete(ctx, userID, strings.TrimSpace(sessionID))
}

// ShouldSuppressUnreadCountPush reports whether any live session of the user
// already shows the change: the notification panel is open, or the session
// is on the detail page of relatedArticleID.
func (t *Tracker) ShouldSuppressUnreadCountPush(ctx context.Context, userID int64, relatedArticleID *int64) (bool, error) {
	sessions, err := t.store.Load(ctx, userID, t.cutoff())
	if err != nil {
		return false, err
	}
	for _, r := range sessions {
		if r.NotificationPanelOpen {
			return true, nil
		}
		if relatedArticleID != nil &&
			r.ViewType == ViewArticleDetail &&
			r.ArticleID != nil &&
			*r.ArticleID == *relatedArticleID {
			return true, nil
		}
	}
	return false, nil
}

// Sweep purges expired sessions for every user and returns how many were
// removed.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	return t.store.Prune(ctx, t.cutoff())
}

// Sessions lists the user's live sessions, most recent first.
func (t *Tracker) Sessions(ctx context.Context, userID int64) ([]Record, error) {
	out, err := t.store.Load(ctx, userID, t.cutoff())
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, nil
}

// Users returns the number of users with tracked sessions.
func (t *Tracker) Users(ctx context.Context) (int, error) {
	return t.store.Users(ctx)
}
