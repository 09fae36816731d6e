package myerrors

import "errors"

var (
	ErrDBConnClosed    = errors.New("failed to connect to db")
	ErrDBConnClosedMsg = errors.New("internal error, please try again later")

	ErrOrderNotFound   = errors.New("order not found")
	ErrDriverNotFound  = errors.New("driver not found")
	ErrClientNotFound  = errors.New("client not found")
	ErrNoCurrentOrder  = errors.New("no current order for this order id")
	ErrStaleStatus     = errors.New("order status changed since it was read")
	ErrDriverBusy      = errors.New("driver already has an order in progress")
	ErrNegativeBalance = errors.New("driver wallet is empty or negative")
	ErrOracleDown      = errors.New("pricing oracle unavailable")
	ErrBadTransition   = errors.New("transition not allowed from current status")
	ErrWrongDriver     = errors.New("order is held by another driver")
	ErrNotParticipant  = errors.New("user is not a party to this order")
)
