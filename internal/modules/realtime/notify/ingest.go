package notify

import (
	"context"
	"encoding/json"

	pkgredis "github.com/mocktalk/realtime/internal/pkg/redis"
	"go.uber.org/zap"
)

const DefaultIngestChannel = "forum:realtime:ingest"

// Consumer applies commands published on a Redis channel. Every instance
// subscribes to the channel, so each one delivers to its own connections only.
type Consumer struct {
	rc         *pkgredis.Client
	channel    string
	dispatcher *Dispatcher
	log        *zap.Logger
}

func NewConsumer(rc *pkgredis.Client, channel string, dispatcher *Dispatcher, logger *zap.Logger) *Consumer {
	if channel == "" {
		channel = DefaultIngestChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{rc: rc, channel: channel, dispatcher: dispatcher.Local(), log: logger.Named("ingest")}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (c *Consumer) Run(ctx context.Context) {
	pubsub := c.rc.Subscribe(ctx, c.channel)
	defer pubsub.Close()
	c.log.Info("ingest consumer subscribed", zap.String("channel", c.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.handle(ctx, msg.Payload)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload string) bool {
	var cmd Command
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		c.log.Warn("ingest payload is not valid JSON", zap.Error(err))
		return false
	}
	if err := c.dispatcher.Apply(ctx, cmd); err != nil {
		c.log.Warn("ingest command rejected", zap.String("kind", string(cmd.Kind)), zap.Error(err))
		return false
	}
	return true
}
