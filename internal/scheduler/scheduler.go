package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
)

var (
	ErrJobExists   = errors.New("job with this id already exists")
	ErrJobNotFound = errors.New("job not found")
	ErrNoHandler   = errors.New("no handler registered for job")
)

const pollInterval = time.Second

// Job is a durable (id, run-at, handler, args) tuple.
type Job struct {
	ID      string
	RunAt   time.Time
	Handler string
	Args    json.RawMessage
}

// Store persists jobs across restarts. Insert must reject duplicate
// ids with ErrJobExists: adding twice under one id fails loudly, it
// never silently replaces.
type Store interface {
	Insert(ctx context.Context, job Job) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Job, error)
	// ClaimDue atomically removes and returns jobs with run_at <= now.
	ClaimDue(ctx context.Context, now time.Time) ([]Job, error)
}

// HandlerFunc runs one fired job. It must re-fetch current order state
// before acting: the order may have moved on since scheduling.
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

// Scheduler is an explicitly constructed service with a Start/Stop
// lifecycle. Jobs whose run-at passed while the process was down are
// claimed and fired exactly once on the first poll after Start.
type Scheduler struct {
	store    Store
	mylog    mylogger.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func New(store Store, mylog mylogger.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		mylog:    mylog,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler name to its callable. All names must be
// registered before Start so that jobs persisted by a previous run can
// fire.
func (s *Scheduler) Register(name string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = fn
}

func (s *Scheduler) Add(ctx context.Context, key JobKey, runAt time.Time, handler string, args any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal job args: %w", err)
	}

	s.mu.RLock()
	_, ok := s.handlers[handler]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, handler)
	}

	return s.store.Insert(ctx, Job{
		ID:      key.String(),
		RunAt:   runAt,
		Handler: handler,
		Args:    body,
	})
}

func (s *Scheduler) Remove(ctx context.Context, key JobKey) error {
	return s.store.Delete(ctx, key.String())
}

func (s *Scheduler) Get(ctx context.Context, key JobKey) (Job, error) {
	return s.store.Get(ctx, key.String())
}

// Start launches the poll loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.mylog.Action("scheduler_started").Info("scheduler is running")
}

// Stop cancels the loop and waits for in-flight job callables.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.mylog.Action("scheduler_stopped").Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.fireDue(ctx, now)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	log := s.mylog.Action("fireDue")

	jobs, err := s.store.ClaimDue(ctx, now)
	if err != nil {
		log.Error("cannot claim due jobs", err)
		return
	}

	for _, job := range jobs {
		s.mu.RLock()
		fn, ok := s.handlers[job.Handler]
		s.mu.RUnlock()
		if !ok {
			log.Warn("dropping job with unknown handler", "job_id", job.ID, "handler", job.Handler)
			continue
		}

		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			if err := fn(ctx, job.Args); err != nil {
				log.Error("job failed", err, "job_id", job.ID, "handler", job.Handler)
				return
			}
			log.Info("job completed", "job_id", job.ID, "handler", job.Handler)
		}(job)
	}
}
