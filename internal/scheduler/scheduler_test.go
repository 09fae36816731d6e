package scheduler

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
)

func testScheduler(t *testing.T) (*Scheduler, *MemStore) {
	t.Helper()
	log, err := mylogger.New("ERROR")
	require.NoError(t, err)
	store := NewMemStore()
	return New(store, log), store
}

func TestAddRejectsDuplicateID(t *testing.T) {
	s, _ := testScheduler(t)
	s.Register("noop", func(ctx context.Context, _ json.RawMessage) error { return nil })

	ctx := context.Background()
	key := DispatchKey(5)
	require.NoError(t, s.Add(ctx, key, time.Now().Add(time.Hour), "noop", nil))

	err := s.Add(ctx, key, time.Now().Add(2*time.Hour), "noop", nil)
	assert.ErrorIs(t, err, ErrJobExists)

	// the original job is untouched
	job, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "5", job.ID)
}

func TestAddUnknownHandler(t *testing.T) {
	s, _ := testScheduler(t)

	err := s.Add(context.Background(), DispatchKey(1), time.Now(), "nobody", nil)
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestRemoveMissingJob(t *testing.T) {
	s, _ := testScheduler(t)

	err := s.Remove(context.Background(), DispatchKey(404))
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDueJobFiresOnce(t *testing.T) {
	s, store := testScheduler(t)

	var fired atomic.Int32
	s.Register("count", func(ctx context.Context, _ json.RawMessage) error {
		fired.Add(1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, DispatchKey(1), time.Now().Add(-time.Minute), "count", nil))

	s.fireDue(ctx, time.Now())
	s.fireDue(ctx, time.Now())
	s.wg.Wait()

	assert.Equal(t, int32(1), fired.Load())

	// claimed jobs are gone from the store
	_, err := store.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestFutureJobDoesNotFire(t *testing.T) {
	s, _ := testScheduler(t)

	var fired atomic.Int32
	s.Register("count", func(ctx context.Context, _ json.RawMessage) error {
		fired.Add(1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, FlipKey(2), time.Now().Add(time.Hour), "count", nil))

	s.fireDue(ctx, time.Now())
	s.wg.Wait()

	assert.Equal(t, int32(0), fired.Load())

	_, err := s.Get(ctx, FlipKey(2))
	assert.NoError(t, err)
}

// A job whose run-at passed while the process was down still fires on
// the first poll of the next run.
func TestOverdueJobSurvivesRestart(t *testing.T) {
	store := NewMemStore()
	log, err := mylogger.New("ERROR")
	require.NoError(t, err)

	ctx := context.Background()
	first := New(store, log)
	first.Register("noop", func(ctx context.Context, _ json.RawMessage) error { return nil })
	require.NoError(t, first.Add(ctx, RemindKey(9, 3), time.Now().Add(-10*time.Minute), "noop", nil))

	// second scheduler over the same store plays the restarted process
	var fired atomic.Int32
	second := New(store, log)
	second.Register("noop", func(ctx context.Context, _ json.RawMessage) error {
		fired.Add(1)
		return nil
	})
	second.fireDue(ctx, time.Now())
	second.wg.Wait()

	assert.Equal(t, int32(1), fired.Load())
}

func TestHandlerReceivesArgs(t *testing.T) {
	s, _ := testScheduler(t)

	type payload struct {
		OrderID int64 `json:"order_id"`
	}

	got := make(chan int64, 1)
	s.Register("args", func(ctx context.Context, raw json.RawMessage) error {
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		got <- p.OrderID
		return nil
	})

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, DispatchKey(77), time.Now().Add(-time.Second), "args", payload{OrderID: 77}))
	s.fireDue(ctx, time.Now())
	s.wg.Wait()

	select {
	case id := <-got:
		assert.Equal(t, int64(77), id)
	default:
		t.Fatal("handler never ran")
	}
}

func TestStartStop(t *testing.T) {
	s, _ := testScheduler(t)
	s.Register("noop", func(ctx context.Context, _ json.RawMessage) error { return nil })

	s.Start(context.Background())
	s.Stop()
}
