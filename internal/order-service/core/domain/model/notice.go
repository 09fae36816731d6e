package model

// NoticeKind routes a notice to the right broker exchange.
type NoticeKind string

const (
	NoticeDirect  NoticeKind = "direct"  // one recipient
	NoticeChannel NoticeKind = "channel" // a named dispatch channel
)

// Notice is an outbound message for a bot front end. Text is already
// rendered; the order service never formats markup.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	UserID  int64      `json:"user_id,omitempty"`
	Channel string     `json:"channel,omitempty"`
	Text    string     `json:"text"`
	OrderID int64      `json:"order_id,omitempty"`
}

// MessageHandle identifies a delivered notice so it can later be
// updated or retracted (the dispatch channel post is taken down once
// a driver claims the order).
type MessageHandle struct {
	ID      string `json:"id"`
	Channel string `json:"channel,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
}

func (h MessageHandle) IsZero() bool { return h.ID == "" }
