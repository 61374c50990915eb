package gateway

// BoardBroadcaster pushes board activity to everyone watching a board.
type BoardBroadcaster struct {
	*Broadcaster
}

// NewBoardBroadcaster creates the board stream broadcaster. Boards are
// unbounded unless opts.Cap is set.
func NewBoardBroadcaster(opts Options) *BoardBroadcaster {
	return &BoardBroadcaster{Broadcaster: NewBroadcaster(ScopeBoard, opts)}
}

// PublishCommentChanged notifies board watchers that a comment was created,
// edited or removed.
func (b *BoardBroadcaster) PublishCommentChanged(boardID int64, data interface{}) Envelope {
	return b.Publish(boardID, EventCommentChanged, data)
}

// PublishReactionChanged notifies board watchers of new reaction totals.
func (b *BoardBroadcaster) PublishReactionChanged(boardID int64, data interface{}) Envelope {
	return b.Publish(boardID, EventReactionChanged, data)
}
