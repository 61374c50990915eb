package gateway

// NotificationBroadcaster pushes per-user notification events. Each user
// keeps at most Cap simultaneous streams; the oldest is evicted first.
type NotificationBroadcaster struct {
	*Broadcaster
}

// NewNotificationBroadcaster creates the user stream broadcaster. A zero cap
// falls back to DefaultUserConnectionCap.
func NewNotificationBroadcaster(opts Options) *NotificationBroadcaster {
	if opts.Cap <= 0 {
		opts.Cap = DefaultUserConnectionCap
	}
	return &NotificationBroadcaster{Broadcaster: NewBroadcaster(ScopeUser, opts)}
}

// PublishUnreadCountChanged pushes the user's new unread count. Whether the
// push is redundant is decided by the caller.
func (n *NotificationBroadcaster) PublishUnreadCountChanged(userID int64, unreadCount int64) Envelope {
	return n.Publish(userID, EventUnreadCountChanged, UnreadCountPayload{UnreadCount: unreadCount})
}

// PublishNotificationCreated pushes a freshly stored notification.
func (n *NotificationBroadcaster) PublishNotificationCreated(userID int64, data interface{}) Envelope {
	return n.Publish(userID, EventNotificationNew, data)
}
