package model

import "time"

// DriverShiftStatus mirrors the dispatcher's view of a driver.
type DriverShiftStatus int

const (
	DriverOffShift DriverShiftStatus = iota + 1
	DriverOnShift
	DriverBusy
)

// Driver is the drivers table row the order service needs. Name,
// phone and car plate are sealed ciphertext.
type Driver struct {
	ID          int64
	TgID        int64
	Username    string
	Name        string
	Phone       string
	CarModel    string
	CarPlate    string
	Wallet      int
	Rating      float64
	TripsCount  int
	ShiftStatus DriverShiftStatus
	IsDeleted   bool
}

// Client is the clients table row the order service needs.
type Client struct {
	ID         int64
	TgID       int64
	Username   string
	Name       string // encrypted
	Phone      string // encrypted
	Bonuses    int
	Rating     float64
	TripsCount int
	IsDeleted  bool
}

// Rating stars come in 1..5, aggregated as a running mean.
type RatingVote struct {
	OrderID int64
	Stars   int
	At      time.Time
}
