package services

import (
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
)

// FareCalc holds the money math. All amounts are whole currency units.
type FareCalc struct {
	cfg config.Fareconfig
}

func NewFareCalc(cfg config.Fareconfig) FareCalc {
	return FareCalc{cfg: cfg}
}

// DriveAroundPrice is a flat hourly product.
func (f FareCalc) DriveAroundPrice(hours int) int {
	return hours * f.cfg.HourlyRate
}

// ExtensionPrice quotes extra drive-around hours at the same rate.
func (f FareCalc) ExtensionPrice(hours int) int {
	return hours * f.cfg.HourlyRate
}

// Commission is what the driver's wallet is credited after a trip. The
// bonus part of the payment counts toward the base, the platform does
// not discount its cut.
func (f FareCalc) Commission(price, bonusesUsed int) int {
	return (price + bonusesUsed) * f.cfg.CommissionPercent / 100
}

// MaxBonusWriteOff caps how much of the balance a client may spend on
// one order.
func (f FareCalc) MaxBonusWriteOff(clientBonuses int) int {
	return clientBonuses * f.cfg.WriteOffPercent / 100
}

// BonusesEarned accrues on the cash part of the payment only.
func (f FareCalc) BonusesEarned(price, bonusesUsed int) int {
	cash := price - bonusesUsed
	if cash < 0 {
		cash = 0
	}
	return cash * f.cfg.CommissionPercent / 100
}

// WaitingSurcharge prices waiting at the pickup point. The first
// WaitFreeSeconds cost nothing, every started window after that adds
// WaitIncrement.
func (f FareCalc) WaitingSurcharge(waited time.Duration) int {
	free := time.Duration(f.cfg.WaitFreeSeconds) * time.Second
	if waited <= free {
		return 0
	}
	window := time.Duration(f.cfg.WaitWindowSeconds) * time.Second
	over := waited - free
	windows := int(over / window)
	if over%window > 0 {
		windows++
	}
	return windows * f.cfg.WaitIncrement
}

// ReminderLead picks how far ahead of a preorder the parties get
// pinged. Distant preorders get a long heads-up, close ones a short
// one; anything closer than 25 minutes gets no reminder at all.
func ReminderLead(untilStart time.Duration) (time.Duration, bool) {
	switch {
	case untilStart > 24*time.Hour:
		return 8 * time.Hour, true
	case untilStart >= 60*time.Minute:
		return 30 * time.Minute, true
	case untilStart >= 25*time.Minute:
		return 20 * time.Minute, true
	default:
		return 0, false
	}
}
