package model

import "time"

// Status is the order lifecycle state. Transitions walk the directed
// graph in transitions.go and nothing else.
type Status int

const (
	StatusUnknown Status = iota
	StatusRequested
	StatusUnderDriverReview
	StatusAcceptedForming
	StatusUnderClientReview
	StatusPreorderAccepted
	StatusDriverEnRoute
	StatusDriverArrived
	StatusInProgress
	StatusAwaitingPayment
	StatusCompleted
	StatusCancelledNoDriver
	StatusCancelledByParty
)

func (s Status) String() string {
	switch s {
	case StatusRequested:
		return "REQUESTED"
	case StatusUnderDriverReview:
		return "UNDER_DRIVER_REVIEW"
	case StatusAcceptedForming:
		return "ACCEPTED_FORMING"
	case StatusUnderClientReview:
		return "UNDER_CLIENT_REVIEW"
	case StatusPreorderAccepted:
		return "PREORDER_ACCEPTED"
	case StatusDriverEnRoute:
		return "DRIVER_EN_ROUTE"
	case StatusDriverArrived:
		return "DRIVER_ARRIVED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusAwaitingPayment:
		return "AWAITING_PAYMENT"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelledNoDriver:
		return "CANCELLED_NO_DRIVER"
	case StatusCancelledByParty:
		return "CANCELLED_BY_PARTY"
	default:
		return "UNKNOWN"
	}
}

// HistoryLabel is the status text written to the order history. The bot
// front ends render these verbatim, so the original Russian labels stay.
func (s Status) HistoryLabel() string {
	switch s {
	case StatusRequested:
		return "принят"
	case StatusUnderDriverReview:
		return "на рассмотрении у водителя"
	case StatusAcceptedForming:
		return "формируется"
	case StatusUnderClientReview:
		return "на рассмотрении у клиента"
	case StatusPreorderAccepted:
		return "предзаказ принят"
	case StatusDriverEnRoute:
		return "водитель в пути"
	case StatusDriverArrived:
		return "водитель на месте"
	case StatusInProgress:
		return "в пути"
	case StatusAwaitingPayment:
		return "производится оплата"
	case StatusCompleted:
		return "завершен"
	case StatusCancelledNoDriver, StatusCancelledByParty:
		return "отменен"
	default:
		return "-"
	}
}

// FareType distinguishes point-to-point fares from open-ended
// drive-around fares, each with a pre-order variant.
type FareType int

const (
	FarePointToPoint FareType = iota + 1
	FareDriveAround
	FareTransit
	FarePreorderPointToPoint
	FarePreorderDriveAround
)

func (f FareType) IsPreorder() bool {
	return f == FarePreorderPointToPoint || f == FarePreorderDriveAround
}

func (f FareType) IsDriveAround() bool {
	return f == FareDriveAround || f == FarePreorderDriveAround
}

// Coords is a WGS84 pair.
type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Order is a ride request from submission to completion. Address and
// coordinate fields hold ciphertext, sealed by the PII sealer before
// the order reaches the repository.
type Order struct {
	ID                 int64
	ClientID           int64
	SubmissionTime     time.Time // requested pickup; zero means "now"
	Start              string    // encrypted origin address
	StartCoords        string    // encrypted origin coords
	Finish             string    // encrypted destination address, empty for drive-around
	FinishCoords       string
	DistanceKm         float64
	TripTime           time.Duration
	Price              int
	PaymentMethod      string
	PaymentWithBonuses int
	Comment            string
	Status             Status
	FareType           FareType
	IsDeleted          bool
}

// CurrentOrder is the live snapshot of an order with a matched driver.
// It exists exactly while the order status names an assigned driver.
type CurrentOrder struct {
	OrderID            int64
	DriverID           int64
	DriverTgID         int64
	DriverUsername     string
	DriverLocation     string // encrypted
	DriverCoords       string // encrypted
	ClientID           int64
	ClientTgID         int64
	ClientUsername     string
	TravelTimeToClient time.Duration
	ScheduledArrival   time.Time // at client
	ActualArrival      time.Time // at client
	TripStart          time.Time
	ScheduledFinish    time.Time // at destination
	ActualFinish       time.Time // at destination
}

// HistoryEntry is one append-only audit row.
type HistoryEntry struct {
	ID        int64
	OrderID   int64
	DriverID  *int64
	Label     string
	Reason    string
	OrderTime time.Time
}
