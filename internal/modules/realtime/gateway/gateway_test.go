package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingConn struct {
	id      string
	mu      sync.Mutex
	got     []Envelope
	failing bool
	closed  atomic.Int32
}

func (r *recordingConn) ID() string { return r.id }

func (r *recordingConn) Send(env Envelope) error {
	if r.failing {
		return errors.New("write: broken pipe")
	}
	r.mu.Lock()
	r.got = append(r.got, env)
	r.mu.Unlock()
	return nil
}

func (r *recordingConn) Close() { r.closed.Add(1) }

func (r *recordingConn) events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.got...)
}

func (r *recordingConn) ofType(t EventType) []Envelope {
	var out []Envelope
	for _, env := range r.events() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-c.Outbox():
			out = append(out, env)
		default:
			return out
		}
	}
}

func testOptions() Options {
	return Options{Clock: clockwork.NewFakeClock(), Logger: zap.NewNop()}
}

func TestBoardPublishReachesEverySubscriberOnce(t *testing.T) {
	board := NewBoardBroadcaster(testOptions())
	conns := []*recordingConn{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, c := range conns {
		board.Attach(7, c, "")
	}

	payload := map[string]int64{"commentId": 99}
	env := board.PublishCommentChanged(7, payload)

	require.NotEmpty(t, env.EventID)
	for _, c := range conns {
		got := c.ofType(EventCommentChanged)
		require.Len(t, got, 1, c.id)
		assert.Equal(t, env.EventID, got[0].EventID)
		assert.Equal(t, int64(7), got[0].ScopeID)
		assert.Equal(t, payload, got[0].Data)
	}
	assert.Equal(t, 3, board.Count(7))
}

func TestBoardPublishWithoutSubscribersIsNoop(t *testing.T) {
	board := NewBoardBroadcaster(testOptions())
	watcher := &recordingConn{id: "w"}
	board.Attach(1, watcher, "")

	board.PublishCommentChanged(8, map[string]int64{"commentId": 1})

	assert.Zero(t, board.Count(8))
	assert.Empty(t, watcher.ofType(EventCommentChanged))
	assert.Equal(t, 1, board.Stats().Scopes)
}

func TestSubscribeSendsConnectedFirst(t *testing.T) {
	board := NewBoardBroadcaster(testOptions())
	client := board.Subscribe(3, "prev-id")

	got := drain(client)
	require.Len(t, got, 1)
	assert.Equal(t, EventConnected, got[0].Type)
	payload := got[0].Data.(ConnectedPayload)
	assert.Equal(t, client.ID(), payload.ConnectionID)
	require.NotNil(t, payload.LastEventID)
	assert.Equal(t, "prev-id", *payload.LastEventID)
}

func TestEventIDsAreUnique(t *testing.T) {
	board := NewBoardBroadcaster(testOptions())
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		env := board.PublishReactionChanged(1, nil)
		require.False(t, seen[env.EventID])
		seen[env.EventID] = true
	}
}

func TestUserCapEvictsOldestStream(t *testing.T) {
	notifications := NewNotificationBroadcaster(testOptions())
	first := notifications.Subscribe(42, "")
	second := notifications.Subscribe(42, "")
	third := notifications.Subscribe(42, "")

	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.False(t, third.Closed())
	assert.Equal(t, []string{second.ID(), third.ID()}, notifications.ConnectionIDs(42))

	drain(first)
	drain(second)
	drain(third)
	notifications.PublishUnreadCountChanged(42, 5)

	assert.Empty(t, drain(first))
	for _, c := range []*Client{second, third} {
		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, EventUnreadCountChanged, got[0].Type)
		assert.Equal(t, UnreadCountPayload{UnreadCount: 5}, got[0].Data)
	}
}

func TestFailedSendRemovesOnlyThatConnection(t *testing.T) {
	notifications := NewNotificationBroadcaster(testOptions())
	healthy := &recordingConn{id: "healthy"}
	broken := &recordingConn{id: "broken"}
	notifications.Attach(5, healthy, "")
	notifications.Attach(5, broken, "")
	broken.failing = true

	notifications.PublishNotificationCreated(5, map[string]string{"title": "hi"})

	assert.Len(t, healthy.ofType(EventNotificationNew), 1)
	assert.EqualValues(t, 1, broken.closed.Load())
	assert.Equal(t, []string{"healthy"}, notifications.ConnectionIDs(5))

	notifications.PublishNotificationCreated(5, nil)
	assert.EqualValues(t, 1, broken.closed.Load())
	assert.Len(t, healthy.ofType(EventNotificationNew), 2)
}

func TestConnectFailureDoesNotRegister(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	opts := testOptions()
	opts.Logger = zap.New(core)
	board := NewBoardBroadcaster(opts)

	dead := &recordingConn{id: "dead", failing: true}
	board.Attach(2, dead, "")

	assert.Zero(t, board.Count(2))
	assert.EqualValues(t, 1, dead.closed.Load())
	assert.Zero(t, logs.FilterMessage("connection attached").Len())
	assert.Equal(t, 1, logs.FilterMessage("connect event failed").Len())

	live := &recordingConn{id: "live"}
	board.Attach(2, live, "")
	attached := logs.FilterMessage("connection attached").All()
	require.Len(t, attached, 1)
	assert.Equal(t, "live", attached[0].ContextMap()["connection_id"])
}

func TestDetachIsIdempotent(t *testing.T) {
	board := NewBoardBroadcaster(testOptions())
	client := board.Subscribe(4, "")
	board.Detach(4, client)
	board.Detach(4, client)

	assert.True(t, client.Closed())
	assert.Zero(t, board.Count(4))
}

func TestHeartbeatReachesAllScopesAndPrunesDead(t *testing.T) {
	board := NewBoardBroadcaster(testOptions())
	a := &recordingConn{id: "a"}
	b := &recordingConn{id: "b"}
	board.Attach(1, a, "")
	board.Attach(2, b, "")
	b.failing = true

	sent := board.Heartbeat()

	assert.Equal(t, 1, sent)
	assert.Len(t, a.ofType(EventHeartbeat), 1)
	assert.Zero(t, board.Count(2))
}

func TestSlowClientIsEvictedOnPublish(t *testing.T) {
	board := NewBoardBroadcaster(Options{SendBuffer: 1, Logger: zap.NewNop()})
	client := board.Subscribe(6, "")

	// The outbox holds CONNECTED and the first publish.
	board.PublishCommentChanged(6, nil)
	board.PublishCommentChanged(6, nil)

	assert.True(t, client.Closed())
	assert.Zero(t, board.Count(6))
}

func TestBacklogReplaysAfterLastEventID(t *testing.T) {
	opts := testOptions()
	opts.ReplayBuffer = 4
	board := NewBoardBroadcaster(opts)

	first := board.PublishCommentChanged(9, "one")
	second := board.PublishCommentChanged(9, "two")
	third := board.PublishCommentChanged(9, "three")

	client := board.Subscribe(9, first.EventID)
	got := drain(client)
	require.Len(t, got, 3)
	assert.Equal(t, EventConnected, got[0].Type)
	assert.Equal(t, second.EventID, got[1].EventID)
	assert.Equal(t, third.EventID, got[2].EventID)

	unknown := board.Subscribe(9, "not-in-backlog")
	assert.Len(t, drain(unknown), 1)
}

func TestBacklogKeepsNewestAndPrunesIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backlog := NewBacklog(2, clock)
	for i := 0; i < 5; i++ {
		backlog.record(1, Envelope{EventID: string(rune('a' + i))}, func() {})
	}
	assert.Equal(t, 2, backlog.Len(1))

	var missed []Envelope
	backlog.resume(1, "d", func(m []Envelope) { missed = m })
	require.Len(t, missed, 1)
	assert.Equal(t, "e", missed[0].EventID)

	clock.Advance(time.Hour)
	assert.Equal(t, 1, backlog.Prune(30*time.Minute))
	assert.Zero(t, backlog.Len(1))

	assert.Nil(t, NewBacklog(0, clock))
}

func TestRelayDispatchSkipsOwnOrigin(t *testing.T) {
	relay := NewRedisRelay(nil, "", zap.NewNop())
	board := NewBoardBroadcaster(testOptions())
	relay.Handle(ScopeBoard, board.Receive)
	watcher := &recordingConn{id: "w"}
	board.Attach(3, watcher, "")

	env := Envelope{EventID: "e1", Scope: ScopeBoard, ScopeID: 3, Type: EventCommentChanged, Data: map[string]interface{}{"commentId": 1.0}}
	own, _ := json.Marshal(relayMessage{Origin: relay.Origin(), Envelope: env})
	remote, _ := json.Marshal(relayMessage{Origin: "other-instance", Envelope: env})

	assert.False(t, relay.dispatch(string(own)))
	assert.True(t, relay.dispatch(string(remote)))
	assert.False(t, relay.dispatch("{not json"))

	got := watcher.ofType(EventCommentChanged)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].EventID)
}

func TestPublishForwardsToRelay(t *testing.T) {
	relay := NewRedisRelay(nil, "", zap.NewNop())
	opts := testOptions()
	opts.Relay = relay
	board := NewBoardBroadcaster(opts)

	env := board.PublishCommentChanged(1, nil)
	select {
	case queued := <-relay.queue:
		assert.Equal(t, env.EventID, queued.EventID)
	default:
		t.Fatal("expected envelope to be queued for relay")
	}
}

func TestPublishLocalSkipsRelay(t *testing.T) {
	relay := NewRedisRelay(nil, "", zap.NewNop())
	opts := testOptions()
	opts.Relay = relay
	board := NewBoardBroadcaster(opts)
	watcher := &recordingConn{id: "w"}
	board.Attach(1, watcher, "")

	env := board.PublishLocal(1, EventCommentChanged, nil)

	got := watcher.ofType(EventCommentChanged)
	require.Len(t, got, 1)
	assert.Equal(t, env.EventID, got[0].EventID)
	select {
	case <-relay.queue:
		t.Fatal("local publish must not reach the relay")
	default:
	}
}

func TestClientSendAfterClose(t *testing.T) {
	c := NewClient("x", ScopeUser, 1, 1)
	require.NoError(t, c.Send(Envelope{}))
	assert.ErrorIs(t, c.Send(Envelope{}), ErrSlowConsumer)
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send(Envelope{}), ErrClientClosed)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	board := NewBoardBroadcaster(Options{SendBuffer: 1024, Logger: zap.NewNop()})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := board.Subscribe(1, "")
			board.Detach(1, c)
		}()
		go func() {
			defer wg.Done()
			board.PublishCommentChanged(1, nil)
		}()
	}
	wg.Wait()
	assert.Zero(t, board.Count(1))
}
