package presence

import (
	"errors"
	"time"
)

// ViewType is the screen a client session currently shows.
type ViewType string

const (
	ViewArticleDetail ViewType = "ARTICLE_DETAIL"
	ViewArticleList   ViewType = "ARTICLE_LIST"
	ViewNotifications ViewType = "NOTIFICATIONS"
	ViewOther         ViewType = "OTHER"
)

// Valid reports whether v is a known view type.
func (v ViewType) Valid() bool {
	switch v {
	case ViewArticleDetail, ViewArticleList, ViewNotifications, ViewOther:
		return true
	}
	return false
}

const (
	DefaultTTL         = 45 * time.Second
	DefaultMaxSessions = 8
	maxSessionIDLength = 128
)

var ErrInvalidPresence = errors.New("invalid presence update")

// Update is a heartbeat from one client session.
type Update struct {
	SessionID             string   `json:"sessionId"`
	ViewType              ViewType `json:"viewType"`
	ArticleID             *int64   `json:"articleId"`
	NotificationPanelOpen bool     `json:"notificationPanelOpen"`
}

// Record is the stored state of one session.
type Record struct {
	SessionID             string    `json:"sessionId"`
	ViewType              ViewType  `json:"viewType"`
	ArticleID             *int64    `json:"articleId"`
	NotificationPanelOpen bool      `json:"notificationPanelOpen"`
	LastSeenAt            time.Time `json:"lastSeenAt"`
}
