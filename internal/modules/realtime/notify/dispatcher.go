// Package notify is the write-side entry point of the realtime pipeline. The
// forum CRUD service reports state changes here, directly or through the
// Redis ingest channel, and the dispatcher routes them to the board and user
// broadcasters. Unread-count pushes consult presence first; nothing else does.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mocktalk/realtime/internal/modules/realtime/gateway"
	"github.com/mocktalk/realtime/internal/modules/realtime/presence"
	"go.uber.org/zap"
)

// Kind names an ingest command.
type Kind string

const (
	KindCommentChanged      Kind = "COMMENT_CHANGED"
	KindReactionChanged     Kind = "REACTION_CHANGED"
	KindUnreadCountChanged  Kind = "UNREAD_COUNT_CHANGED"
	KindNotificationCreated Kind = "NOTIFICATION_CREATED"
)

var (
	ErrUnknownKind    = errors.New("unknown command kind")
	ErrMissingBoardID = errors.New("boardId is required")
	ErrMissingUserID  = errors.New("userId is required")
	ErrMissingCount   = errors.New("unreadCount is required")
)

// Command is one change reported by the CRUD service.
type Command struct {
	Kind             Kind            `json:"kind"`
	BoardID          int64           `json:"boardId,omitempty"`
	UserID           int64           `json:"userId,omitempty"`
	RelatedArticleID *int64          `json:"relatedArticleId,omitempty"`
	UnreadCount      *int64          `json:"unreadCount,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type Dispatcher struct {
	boards   *gateway.BoardBroadcaster
	users    *gateway.NotificationBroadcaster
	presence *presence.Tracker
	log      *zap.Logger
	// local skips the cross-instance relay.
	local bool
}

func NewDispatcher(boards *gateway.BoardBroadcaster, users *gateway.NotificationBroadcaster, tracker *presence.Tracker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{boards: boards, users: users, presence: tracker, log: logger.Named("notify")}
}

// Local returns a dispatcher that only reaches connections on this instance.
// The ingest channel is delivered to every instance, so commands read from it
// must not be relayed again.
func (d *Dispatcher) Local() *Dispatcher {
	cp := *d
	cp.local = true
	return &cp
}

func (d *Dispatcher) emit(b *gateway.Broadcaster, scopeID int64, event gateway.EventType, data interface{}) {
	if d.local {
		b.PublishLocal(scopeID, event, data)
		return
	}
	b.Publish(scopeID, event, data)
}

// PublishUnreadCount pushes the user's unread count unless one of their live
// sessions already shows it. It reports whether the push was sent. When the
// presence store cannot be read the push goes out anyway.
func (d *Dispatcher) PublishUnreadCount(ctx context.Context, userID, unreadCount int64, relatedArticleID *int64) bool {
	if d.presence != nil {
		suppress, err := d.presence.ShouldSuppressUnreadCountPush(ctx, userID, relatedArticleID)
		if err != nil {
			d.log.Warn("presence lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		if suppress {
			d.log.Debug("unread count push suppressed", zap.Int64("user_id", userID))
			return false
		}
	}
	d.emit(d.users.Broadcaster, userID, gateway.EventUnreadCountChanged, gateway.UnreadCountPayload{UnreadCount: unreadCount})
	return true
}

func (d *Dispatcher) PublishNotificationCreated(userID int64, payload interface{}) {
	d.emit(d.users.Broadcaster, userID, gateway.EventNotificationNew, payload)
}

func (d *Dispatcher) PublishCommentChanged(boardID int64, payload interface{}) {
	d.emit(d.boards.Broadcaster, boardID, gateway.EventCommentChanged, payload)
}

func (d *Dispatcher) PublishReactionChanged(boardID int64, payload interface{}) {
	d.emit(d.boards.Broadcaster, boardID, gateway.EventReactionChanged, payload)
}

// Apply routes one command.
func (d *Dispatcher) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case KindCommentChanged, KindReactionChanged:
		if cmd.BoardID <= 0 {
			return ErrMissingBoardID
		}
		if cmd.Kind == KindCommentChanged {
			d.PublishCommentChanged(cmd.BoardID, cmd.Payload)
		} else {
			d.PublishReactionChanged(cmd.BoardID, cmd.Payload)
		}
	case KindUnreadCountChanged:
		if cmd.UserID <= 0 {
			return ErrMissingUserID
		}
		if cmd.UnreadCount == nil {
			return ErrMissingCount
		}
		d.PublishUnreadCount(ctx, cmd.UserID, *cmd.UnreadCount, cmd.RelatedArticleID)
	case KindNotificationCreated:
		if cmd.UserID <= 0 {
			return ErrMissingUserID
		}
		d.PublishNotificationCreated(cmd.UserID, cmd.Payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, cmd.Kind)
	}
	return nil
}
