package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
)

func testFareCfg() config.Fareconfig {
	return config.Fareconfig{
		CommissionPercent: 10,
		WriteOffPercent:   30,
		HourlyRate:        2500,
		WaitFreeSeconds:   297,
		WaitWindowSeconds: 60,
		WaitIncrement:     20,
		DispatchTimeout:   30,
	}
}

func TestDriveAroundPrice(t *testing.T) {
	f := NewFareCalc(testFareCfg())

	assert.Equal(t, 2500, f.DriveAroundPrice(1))
	assert.Equal(t, 7500, f.DriveAroundPrice(3))
	assert.Equal(t, 5000, f.ExtensionPrice(2))
}

func TestCommission(t *testing.T) {
	f := NewFareCalc(testFareCfg())

	assert.Equal(t, 100, f.Commission(1000, 0))
	// the bonus part still counts toward the commission base
	assert.Equal(t, 120, f.Commission(1000, 200))
}

func TestMaxBonusWriteOff(t *testing.T) {
	f := NewFareCalc(testFareCfg())

	assert.Equal(t, 300, f.MaxBonusWriteOff(1000))
	assert.Equal(t, 0, f.MaxBonusWriteOff(0))
	assert.Equal(t, 3, f.MaxBonusWriteOff(10))
}

func TestBonusesEarned(t *testing.T) {
	f := NewFareCalc(testFareCfg())

	assert.Equal(t, 100, f.BonusesEarned(1000, 0))
	assert.Equal(t, 80, f.BonusesEarned(1000, 200))
	assert.Equal(t, 0, f.BonusesEarned(200, 200))
}

func TestWaitingSurcharge(t *testing.T) {
	f := NewFareCalc(testFareCfg())

	assert.Equal(t, 0, f.WaitingSurcharge(0))
	assert.Equal(t, 0, f.WaitingSurcharge(297*time.Second))
	// one started window
	assert.Equal(t, 20, f.WaitingSurcharge(298*time.Second))
	assert.Equal(t, 20, f.WaitingSurcharge(297*time.Second+60*time.Second))
	// second window starts
	assert.Equal(t, 40, f.WaitingSurcharge(297*time.Second+61*time.Second))
	assert.Equal(t, 100, f.WaitingSurcharge(297*time.Second+5*time.Minute))
}

func TestReminderLead(t *testing.T) {
	lead, ok := ReminderLead(48 * time.Hour)
	assert.True(t, ok)
	assert.Equal(t, 8*time.Hour, lead)

	lead, ok = ReminderLead(3 * time.Hour)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Minute, lead)

	lead, ok = ReminderLead(60 * time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Minute, lead)

	lead, ok = ReminderLead(45 * time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 20*time.Minute, lead)

	lead, ok = ReminderLead(25 * time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 20*time.Minute, lead)

	_, ok = ReminderLead(24 * time.Minute)
	assert.False(t, ok)

	_, ok = ReminderLead(5 * time.Minute)
	assert.False(t, ok)
}
