package ports

import "context"

// SessionState names the step of the bot dialog a user is on. Front
// ends render the matching keyboard; the order service moves the state
// along with the order and clears it on terminal transitions.
type SessionState string

const (
	SessionIdle           SessionState = ""
	SessionReviewingOrder SessionState = "reviewing_order"
	SessionConfirmDriver  SessionState = "confirm_driver"
	SessionOnTrip         SessionState = "on_trip"
	SessionAwaitingReason SessionState = "awaiting_reason"
)

// Session is the per-user dialog state a bot front end keeps between
// messages.
type Session struct {
	UserID  int64             `json:"user_id"`
	State   SessionState      `json:"state"`
	OrderID int64             `json:"order_id,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ISessionStore interface {
	Get(ctx context.Context, userID int64) (Session, error)
	Put(ctx context.Context, s Session) error
	Clear(ctx context.Context, userID int64) error
}
