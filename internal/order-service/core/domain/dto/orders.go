package dto

import "time"

// API Transfer data

// Identity fields carry messenger ids: the auth layer knows callers by
// tg id, handlers overwrite these from the verified token so a body
// cannot impersonate another party.

type SubmitOrderDto struct {
	ClientTgId         int64   `json:"client_tg_id"`
	SubmissionTime     string  `json:"submission_time,omitempty"` // RFC3339, empty for "now"
	StartAddress       string  `json:"start_address"`
	StartLatitude      float64 `json:"start_latitude"`
	StartLongitude     float64 `json:"start_longitude"`
	FinishAddress      string  `json:"finish_address,omitempty"`
	FinishLatitude     float64 `json:"finish_latitude,omitempty"`
	FinishLongitude    float64 `json:"finish_longitude,omitempty"`
	FareType           int     `json:"fare_type"`
	DriveAroundHours   int     `json:"drive_around_hours,omitempty"`
	PaymentMethod      string  `json:"payment_method"`
	PaymentWithBonuses int     `json:"payment_with_bonuses,omitempty"`
	Comment            string  `json:"comment,omitempty"`
}

type OrderResponseDto struct {
	OrderId     int64   `json:"order_id"`
	Status      string  `json:"status"`
	Price       int     `json:"price"`
	DistanceKm  float64 `json:"distance_km"`
	TripMinutes float64 `json:"trip_minutes"`
}

type ReviewOrderDto struct {
	OrderId    int64 `json:"order_id"`
	DriverTgId int64 `json:"driver_tg_id"`
}

type DriverDecisionDto struct {
	OrderId                   int64   `json:"order_id"`
	DriverTgId                int64   `json:"driver_tg_id"`
	TravelTimeToClientMinutes int     `json:"travel_time_minutes,omitempty"`
	Location                  string  `json:"location,omitempty"`
	Latitude                  float64 `json:"latitude,omitempty"`
	Longitude                 float64 `json:"longitude,omitempty"`
}

type ClientDecisionDto struct {
	OrderId    int64  `json:"order_id"`
	ClientTgId int64  `json:"client_tg_id"`
	Reason     string `json:"reason,omitempty"`
}

type RejectReasonDto struct {
	ClientTgId int64  `json:"client_tg_id"`
	Reason     string `json:"reason"`
}

type ExtensionDto struct {
	OrderId  int64 `json:"order_id"`
	UserTgId int64 `json:"user_tg_id"`
	Hours    int   `json:"hours"`
}

type PaymentDto struct {
	OrderId    int64  `json:"order_id"`
	UserTgId   int64  `json:"user_tg_id"`
	Method     string `json:"payment_method,omitempty"`
	UseBonuses int    `json:"use_bonuses,omitempty"`
}

type CancelDto struct {
	OrderId  int64  `json:"order_id"`
	UserTgId int64  `json:"user_tg_id"`
	Reason   string `json:"reason,omitempty"`
}

type RateDto struct {
	OrderId int64 `json:"order_id"`
	Stars   int   `json:"stars"`
}

type ReminderPrefDto struct {
	OrderId     int64 `json:"order_id"`
	LeadMinutes int   `json:"lead_minutes"`
}

type PreorderSummaryDto struct {
	OrderId  int64     `json:"order_id"`
	StartsAt time.Time `json:"starts_at"`
	Price    int       `json:"price"`
	FareType int       `json:"fare_type"`
}

type OrderStatusUpdate struct {
	OrderId int64     `json:"order_id"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}
