package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitTimerStopWithoutStart(t *testing.T) {
	w := newWaitTimers()
	assert.Equal(t, time.Duration(0), w.Stop(1))
}

func TestWaitTimerMeasuresElapsed(t *testing.T) {
	w := newWaitTimers()
	w.Start(1, time.Hour, time.Hour, func(time.Duration) {
		t.Error("window callback must not fire inside the free period")
	})

	time.Sleep(20 * time.Millisecond)
	elapsed := w.Stop(1)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)

	// a second stop is a no-op
	assert.Equal(t, time.Duration(0), w.Stop(1))
}

func TestWaitTimerFiresWindows(t *testing.T) {
	w := newWaitTimers()

	var windows atomic.Int32
	w.Start(2, 10*time.Millisecond, 15*time.Millisecond, func(elapsed time.Duration) {
		windows.Add(1)
	})

	time.Sleep(60 * time.Millisecond)
	w.Stop(2)

	fired := windows.Load()
	assert.GreaterOrEqual(t, fired, int32(1))

	// no callbacks after stop
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, fired, windows.Load())
}

func TestWaitTimerDoubleStart(t *testing.T) {
	w := newWaitTimers()

	w.Start(3, time.Hour, time.Hour, nil)
	w.Start(3, time.Hour, time.Hour, nil) // ignored

	assert.NotEqual(t, time.Duration(0), func() time.Duration {
		time.Sleep(time.Millisecond)
		return w.Stop(3)
	}())
}
