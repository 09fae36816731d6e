package services

import (
	"sync"
	"time"
)

// waitTimers tracks paid waiting at the pickup point, one timer per
// order. These are in-process only. If the service restarts while a
// driver waits, the surcharge restarts from zero, which is the lenient
// direction to fail in.
type waitTimers struct {
	mu     sync.Mutex
	timers map[int64]*waitEntry
}

type waitEntry struct {
	startedAt time.Time
	stop      chan struct{}
}

func newWaitTimers() *waitTimers {
	return &waitTimers{timers: make(map[int64]*waitEntry)}
}

// Start begins counting. After the free period it calls onWindow at
// every paid window boundary with the total elapsed wait.
func (w *waitTimers) Start(orderID int64, free, window time.Duration, onWindow func(elapsed time.Duration)) {
	w.mu.Lock()
	if _, ok := w.timers[orderID]; ok {
		w.mu.Unlock()
		return
	}
	e := &waitEntry{startedAt: time.Now(), stop: make(chan struct{})}
	w.timers[orderID] = e
	w.mu.Unlock()

	go func() {
		t := time.NewTimer(free)
		defer t.Stop()
		select {
		case <-e.stop:
			return
		case <-t.C:
		}
		tick := time.NewTicker(window)
		defer tick.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-tick.C:
				onWindow(time.Since(e.startedAt))
			}
		}
	}()
}

// Stop ends the timer and returns how long the driver waited in total.
// Stopping an order with no timer returns zero.
func (w *waitTimers) Stop(orderID int64) time.Duration {
	w.mu.Lock()
	e, ok := w.timers[orderID]
	delete(w.timers, orderID)
	w.mu.Unlock()
	if !ok {
		return 0
	}
	close(e.stop)
	return time.Since(e.startedAt)
}
