package gateway

import (
	"errors"
	"strings"
	"time"
)

// EventType names a push event.
type EventType string

const (
	EventConnected          EventType = "CONNECTED"
	EventHeartbeat          EventType = "HEARTBEAT"
	EventCommentChanged     EventType = "COMMENT_CHANGED"
	EventReactionChanged    EventType = "REACTION_CHANGED"
	EventUnreadCountChanged EventType = "UNREAD_COUNT_CHANGED"
	EventNotificationNew    EventType = "NOTIFICATION_CREATED"
)

// StreamName is the lower-cased SSE event name.
func (t EventType) StreamName() string {
	return strings.ToLower(string(t))
}

// Scope distinguishes the two fan-out domains.
type Scope string

const (
	ScopeBoard Scope = "board"
	ScopeUser  Scope = "user"
)

const (
	DefaultUserConnectionCap = 2
	DefaultSendBuffer        = 32
)

var (
	ErrClientClosed = errors.New("connection closed")
	ErrSlowConsumer = errors.New("connection send buffer full")
)

// Envelope is the unit pushed to clients.
type Envelope struct {
	EventID    string      `json:"eventId"`
	Scope      Scope       `json:"scope"`
	ScopeID    int64       `json:"scopeId"`
	Type       EventType   `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

// Conn is the push capability a transport provides. Send must not block on
// network I/O and Close must be idempotent.
type Conn interface {
	ID() string
	Send(Envelope) error
	Close()
}

// ConnectedPayload is the data of the CONNECTED event.
type ConnectedPayload struct {
	ConnectionID string  `json:"connectionId"`
	LastEventID  *string `json:"lastEventId"`
}

// UnreadCountPayload is the data of UNREAD_COUNT_CHANGED.
type UnreadCountPayload struct {
	UnreadCount int64 `json:"unreadCount"`
}

// ReactionChangedPayload is the data of REACTION_CHANGED.
type ReactionChangedPayload struct {
	CommentID    int64 `json:"commentId"`
	ArticleID    int64 `json:"articleId"`
	LikeCount    int64 `json:"likeCount"`
	DislikeCount int64 `json:"dislikeCount"`
}

// Stats reports live connection counts for one broadcaster.
type Stats struct {
	Scopes      int `json:"scopes"`
	Connections int `json:"connections"`
	Cap         int `json:"cap"`
}
