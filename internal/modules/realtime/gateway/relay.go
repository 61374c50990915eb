package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgredis "github.com/mocktalk/realtime/internal/pkg/redis"
	"go.uber.org/zap"
)

const (
	DefaultRelayChannel = "forum:realtime:fanout"
	relayQueueSize      = 256
	relayPublishTimeout = 2 * time.Second
)

// Relay forwards locally published envelopes to other instances.
type Relay interface {
	Forward(env Envelope)
}

type relayMessage struct {
	Origin   string   `json:"origin"`
	Envelope Envelope `json:"envelope"`
}

// RedisRelay fans envelopes out over a Redis pub/sub channel. Messages carry
// the publishing instance id so an instance never re-delivers its own events.
type RedisRelay struct {
	rc      *pkgredis.Client
	channel string
	origin  string
	queue   chan Envelope
	logger  *zap.Logger

	mu       sync.RWMutex
	handlers map[Scope]func(Envelope)
}

// NewRedisRelay creates a relay on channel.
func NewRedisRelay(rc *pkgredis.Client, channel string, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		rc:       rc,
		channel:  channel,
		origin:   uuid.NewString(),
		queue:    make(chan Envelope, relayQueueSize),
		logger:   logger,
		handlers: make(map[Scope]func(Envelope)),
	}
}

// Origin returns this instance's relay id.
func (r *RedisRelay) Origin() string { return r.origin }

// Handle routes remote envelopes of the given scope to fn.
func (r *RedisRelay) Handle(scope Scope, fn func(Envelope)) {
	r.mu.Lock()
	r.handlers[scope] = fn
	r.mu.Unlock()
}

// Forward queues env for publishing. It never blocks; when the queue is full
// the envelope is dropped and remote subscribers miss it.
func (r *RedisRelay) Forward(env Envelope) {
	select {
	case r.queue <- env:
	default:
		r.logger.Warn("realtime relay queue full, dropping envelope",
			zap.String("type", string(env.Type)),
			zap.Int64("scope_id", env.ScopeID))
	}
}

// Run publishes queued envelopes and delivers remote ones until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) {
	go r.subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.queue:
			data, err := json.Marshal(relayMessage{Origin: r.origin, Envelope: env})
			if err != nil {
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
			if err := r.rc.Publish(pubCtx, r.channel, string(data)); err != nil {
				r.logger.Warn("realtime relay publish failed", zap.String("channel", r.channel), zap.Error(err))
			}
			cancel()
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context) {
	pubsub := r.rc.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(msg.Payload)
		}
	}
}

// dispatch decodes one relay payload and hands it to the scope handler.
func (r *RedisRelay) dispatch(payload string) bool {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Debug("realtime relay payload ignored", zap.Error(err))
		return false
	}
	if msg.Origin == r.origin {
		return false
	}

	r.mu.RLock()
	fn := r.handlers[msg.Envelope.Scope]
	r.mu.RUnlock()
	if fn == nil {
		return false
	}
	fn(msg.Envelope)
	return true
}
