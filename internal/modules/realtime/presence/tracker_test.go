package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// eachStore runs fn against the in-process store and the Redis store.
func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) { fn(t, NewRedisStore(newTestRedis(t), "")) })
}

func newTestTracker(store Store, opts ...Option) (*Tracker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	opts = append([]Option{WithClock(clock), WithStore(store)}, opts...)
	return NewTracker(opts...), clock
}

func suppressed(t *testing.T, tracker *Tracker, userID int64, articleID *int64) bool {
	t.Helper()
	ok, err := tracker.ShouldSuppressUnreadCountPush(context.Background(), userID, articleID)
	require.NoError(t, err)
	return ok
}

func upsert(t *testing.T, tracker *Tracker, userID int64, u Update) {
	t.Helper()
	_, err := tracker.Upsert(context.Background(), userID, u)
	require.NoError(t, err)
}

func sessions(t *testing.T, tracker *Tracker, userID int64) []Record {
	t.Helper()
	out, err := tracker.Sessions(context.Background(), userID)
	require.NoError(t, err)
	return out
}

func users(t *testing.T, tracker *Tracker) int {
	t.Helper()
	n, err := tracker.Users(context.Background())
	require.NoError(t, err)
	return n
}

func TestSuppressWhenViewingSameArticle(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, _ := newTestTracker(store)
		upsert(t, tracker, 1, Update{SessionID: "session-a", ViewType: ViewArticleDetail, ArticleID: int64Ptr(10)})

		assert.True(t, suppressed(t, tracker, 1, int64Ptr(10)))
		assert.False(t, suppressed(t, tracker, 1, int64Ptr(11)))
		assert.False(t, suppressed(t, tracker, 1, nil))
	})
}

func TestSuppressWhenPanelOpen(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, _ := newTestTracker(store)
		upsert(t, tracker, 2, Update{SessionID: "session-b", ViewType: ViewOther, NotificationPanelOpen: true})

		assert.True(t, suppressed(t, tracker, 2, int64Ptr(99)))
		assert.True(t, suppressed(t, tracker, 2, nil))
	})
}

func TestExpiredPresenceIsIgnoredAndPurged(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, clock := newTestTracker(store)
		upsert(t, tracker, 3, Update{SessionID: "session-c", ViewType: ViewArticleDetail, ArticleID: int64Ptr(20)})

		clock.Advance(45 * time.Second)
		assert.True(t, suppressed(t, tracker, 3, int64Ptr(20)), "exactly at TTL is still live")

		clock.Advance(5 * time.Second)
		assert.False(t, suppressed(t, tracker, 3, int64Ptr(20)))
		assert.Zero(t, users(t, tracker))
	})
}

func TestUnknownUserIsNotSuppressed(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, _ := newTestTracker(store)
		assert.False(t, suppressed(t, tracker, 404, int64Ptr(1)))

		removed, err := tracker.Remove(context.Background(), 404, "nothing")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestLastWriteWinsPerSession(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, clock := newTestTracker(store)
		upsert(t, tracker, 4, Update{SessionID: "s", ViewType: ViewOther, NotificationPanelOpen: true})
		clock.Advance(time.Second)
		upsert(t, tracker, 4, Update{SessionID: "s", ViewType: ViewArticleList})

		got := sessions(t, tracker, 4)
		require.Len(t, got, 1)
		assert.Equal(t, ViewArticleList, got[0].ViewType)
		assert.False(t, suppressed(t, tracker, 4, nil))
	})
}

func TestAnySessionCanSuppress(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, _ := newTestTracker(store)
		upsert(t, tracker, 5, Update{SessionID: "tab-1", ViewType: ViewArticleList})
		upsert(t, tracker, 5, Update{SessionID: "tab-2", ViewType: ViewArticleDetail, ArticleID: int64Ptr(7)})

		assert.True(t, suppressed(t, tracker, 5, int64Ptr(7)))

		removed, err := tracker.Remove(context.Background(), 5, "tab-2")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.False(t, suppressed(t, tracker, 5, int64Ptr(7)))
	})
}

func TestRemoveLastSessionDropsUser(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, _ := newTestTracker(store)
		upsert(t, tracker, 6, Update{SessionID: "only", ViewType: ViewNotifications, NotificationPanelOpen: true})
		require.Equal(t, 1, users(t, tracker))

		removed, err := tracker.Remove(context.Background(), 6, "only")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Zero(t, users(t, tracker))
		assert.False(t, suppressed(t, tracker, 6, nil))
	})
}

func TestMaxSessionsEvictsOldestHeartbeat(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, clock := newTestTracker(store, WithMaxSessions(3))
		for i := 0; i < 4; i++ {
			upsert(t, tracker, 7, Update{SessionID: fmt.Sprintf("s%d", i), ViewType: ViewOther})
			clock.Advance(time.Second)
		}

		got := sessions(t, tracker, 7)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"s3", "s2", "s1"}, []string{got[0].SessionID, got[1].SessionID, got[2].SessionID})
	})
}

func TestRefreshingExistingSessionDoesNotEvict(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, _ := newTestTracker(store, WithMaxSessions(2))
		upsert(t, tracker, 8, Update{SessionID: "a", ViewType: ViewOther})
		upsert(t, tracker, 8, Update{SessionID: "b", ViewType: ViewOther})
		upsert(t, tracker, 8, Update{SessionID: "a", ViewType: ViewOther})

		assert.Len(t, sessions(t, tracker, 8), 2)
	})
}

func TestInvalidUpdatesAreRejected(t *testing.T) {
	tracker, _ := newTestTracker(NewMemoryStore())
	ctx := context.Background()
	_, err := tracker.Upsert(ctx, 9, Update{SessionID: "  ", ViewType: ViewOther})
	assert.ErrorIs(t, err, ErrInvalidPresence)
	_, err = tracker.Upsert(ctx, 9, Update{SessionID: "s", ViewType: "SIDEWAYS"})
	assert.ErrorIs(t, err, ErrInvalidPresence)
	assert.Zero(t, users(t, tracker))
}

func TestSweepPurgesExpired(t *testing.T) {
	tracker, clock := newTestTracker(NewMemoryStore())
	upsert(t, tracker, 10, Update{SessionID: "old", ViewType: ViewOther})
	clock.Advance(30 * time.Second)
	upsert(t, tracker, 11, Update{SessionID: "fresh", ViewType: ViewOther})
	clock.Advance(20 * time.Second)

	removed, err := tracker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, users(t, tracker))
	assert.Len(t, sessions(t, tracker, 11), 1)
}

func TestTrackersSharingRedisSeeEachOther(t *testing.T) {
	rdb := newTestRedis(t)
	clock := clockwork.NewFakeClock()
	a := NewTracker(WithClock(clock), WithStore(NewRedisStore(rdb, "")))
	b := NewTracker(WithClock(clock), WithStore(NewRedisStore(rdb, "")))

	upsert(t, a, 21, Update{SessionID: "tab", ViewType: ViewNotifications, NotificationPanelOpen: true})
	assert.True(t, suppressed(t, b, 21, nil))

	removed, err := b.Remove(context.Background(), 21, "tab")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, suppressed(t, a, 21, nil))
}

func TestRedisKeysExpireAfterLastHeartbeat(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	tracker, _ := newTestTracker(NewRedisStore(rdb, "test:presence"))

	upsert(t, tracker, 22, Update{SessionID: "tab", ViewType: ViewOther})
	assert.True(t, mr.Exists("test:presence:{22}"))
	assert.True(t, mr.Exists("test:presence:{22}:seen"))

	mr.FastForward(DefaultTTL + 2*time.Second)
	assert.False(t, mr.Exists("test:presence:{22}"))
	assert.False(t, mr.Exists("test:presence:{22}:seen"))
}

func TestConcurrentUpsertRemoveQuery(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		tracker, _ := newTestTracker(store)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("s%d", i%5)
				_, _ = tracker.Upsert(ctx, 12, Update{SessionID: id, ViewType: ViewArticleDetail, ArticleID: int64Ptr(1)})
				_, _ = tracker.ShouldSuppressUnreadCountPush(ctx, 12, int64Ptr(1))
				if i%2 == 0 {
					_, _ = tracker.Remove(ctx, 12, id)
				}
				_, _ = tracker.Sweep(ctx)
			}(i)
		}
		wg.Wait()
		assert.LessOrEqual(t, len(sessions(t, tracker, 12)), DefaultMaxSessions)
	})
}
