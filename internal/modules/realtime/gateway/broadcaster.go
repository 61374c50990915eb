package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mocktalk/realtime/internal/pkg/registry"
	"go.uber.org/zap"
)

// Options configures a Broadcaster.
type Options struct {
	// Cap bounds connections per scope; <= 0 is unbounded.
	Cap int
	// SendBuffer is the outbox capacity of clients created by Subscribe.
	SendBuffer int
	// ReplayBuffer is the per-scope resume backlog; <= 0 disables replay.
	ReplayBuffer int
	Clock        clockwork.Clock
	Logger       *zap.Logger
	Relay        Relay
}

// Broadcaster fans envelopes out to every connection registered under a
// scope id. It is shared by the board and notification streams.
type Broadcaster struct {
	scope   Scope
	conns   *registry.Registry[int64, Conn]
	backlog *Backlog
	relay   Relay
	clock   clockwork.Clock
	logger  *zap.Logger
	buffer  int
}

// NewBroadcaster creates a broadcaster for one scope kind.
func NewBroadcaster(scope Scope, opts Options) *Broadcaster {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	return &Broadcaster{
		scope:   scope,
		conns:   registry.New[int64, Conn](opts.Cap),
		backlog: NewBacklog(opts.ReplayBuffer, opts.Clock),
		relay:   opts.Relay,
		clock:   opts.Clock,
		logger:  opts.Logger.Named(string(scope) + "-broadcaster"),
		buffer:  opts.SendBuffer,
	}
}

func (b *Broadcaster) envelope(scopeID int64, eventType EventType, data interface{}) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		Scope:      b.scope,
		ScopeID:    scopeID,
		Type:       eventType,
		OccurredAt: b.clock.Now().UTC(),
		Data:       data,
	}
}

// Subscribe opens a queued client under scopeID. The client receives a
// CONNECTED event first, then any backlog after lastEventID, then live events.
func (b *Broadcaster) Subscribe(scopeID int64, lastEventID string) *Client {
	client := NewClient(uuid.NewString(), b.scope, scopeID, b.buffer+b.backlog.Size()+1)
	b.Attach(scopeID, client, lastEventID)
	return client
}

// Attach registers an arbitrary connection under scopeID.
func (b *Broadcaster) Attach(scopeID int64, c Conn, lastEventID string) {
	var last *string
	if lastEventID != "" {
		last = &lastEventID
	}
	connected := b.envelope(scopeID, EventConnected, ConnectedPayload{ConnectionID: c.ID(), LastEventID: last})

	b.backlog.resume(scopeID, lastEventID, func(missed []Envelope) {
		if err := c.Send(connected); err != nil {
			b.logger.Debug("connect event failed", zap.Int64("scope_id", scopeID), zap.Error(err))
			c.Close()
			return
		}
		for _, env := range missed {
			if err := c.Send(env); err != nil {
				b.logger.Debug("replay failed", zap.Int64("scope_id", scopeID), zap.Error(err))
				c.Close()
				return
			}
		}
		evicted := b.conns.Register(scopeID, c.ID(), c)
		b.logger.Debug("connection attached",
			zap.Int64("scope_id", scopeID),
			zap.String("connection_id", c.ID()),
			zap.Int("replayed", len(missed)),
			zap.Int("evicted", evicted))
	})
}

// Detach removes and closes a connection. Repeated calls are harmless.
func (b *Broadcaster) Detach(scopeID int64, c Conn) {
	if b.conns.UnregisterHandle(scopeID, c.ID(), c) {
		b.logger.Debug("connection detached", zap.Int64("scope_id", scopeID), zap.String("connection_id", c.ID()))
	}
	c.Close()
}

// Publish builds a fresh envelope, delivers it to local connections and
// forwards it to the relay. It returns the envelope that was sent.
func (b *Broadcaster) Publish(scopeID int64, eventType EventType, data interface{}) Envelope {
	env := b.envelope(scopeID, eventType, data)
	b.deliver(env)
	if b.relay != nil {
		b.relay.Forward(env)
	}
	return env
}

// PublishLocal is Publish without the relay. Use it when every instance
// receives the same change independently, such as the ingest channel, so a
// connection still sees the change exactly once.
func (b *Broadcaster) PublishLocal(scopeID int64, eventType EventType, data interface{}) Envelope {
	env := b.envelope(scopeID, eventType, data)
	b.deliver(env)
	return env
}

// Receive delivers an envelope published by another instance.
func (b *Broadcaster) Receive(env Envelope) {
	if env.Scope != b.scope {
		return
	}
	b.deliver(env)
}

func (b *Broadcaster) deliver(env Envelope) int {
	delivered := 0
	b.backlog.record(env.ScopeID, env, func() {
		delivered = b.conns.ForEach(env.ScopeID, b.sendFn(env))
	})
	return delivered
}

func (b *Broadcaster) sendFn(env Envelope) func(string, Conn) error {
	return func(id string, c Conn) error {
		err := c.Send(env)
		if err != nil {
			b.logger.Debug("dropping connection after failed send",
				zap.Int64("scope_id", env.ScopeID),
				zap.String("connection_id", id),
				zap.Error(err))
		}
		return err
	}
}

// Heartbeat pushes a HEARTBEAT to every live connection. Connections that
// cannot accept it are removed. Heartbeats are neither replayed nor relayed.
func (b *Broadcaster) Heartbeat() int {
	sent := 0
	for _, scopeID := range b.conns.Keys() {
		env := b.envelope(scopeID, EventHeartbeat, nil)
		sent += b.conns.ForEach(scopeID, b.sendFn(env))
	}
	return sent
}

// PruneBacklog drops resume buffers of scopes idle for longer than maxAge.
func (b *Broadcaster) PruneBacklog(maxAge time.Duration) int {
	return b.backlog.Prune(maxAge)
}

// Count returns the number of connections under scopeID.
func (b *Broadcaster) Count(scopeID int64) int {
	return b.conns.Len(scopeID)
}

// ConnectionIDs lists connections under scopeID, oldest first.
func (b *Broadcaster) ConnectionIDs(scopeID int64) []string {
	return b.conns.IDs(scopeID)
}

// Stats reports live counts.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Scopes:      len(b.conns.Keys()),
		Connections: b.conns.Total(),
		Cap:         b.conns.Cap(),
	}
}

// Close ends every connection.
func (b *Broadcaster) Close() {
	b.conns.CloseAll()
}
