package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-node setups
// that can live without restart durability.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]Job)}
}

func (m *MemStore) Insert(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobExists
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *MemStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *MemStore) Get(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (m *MemStore) ClaimDue(ctx context.Context, now time.Time) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Job
	for id, job := range m.jobs {
		if !job.RunAt.After(now) {
			due = append(due, job)
			delete(m.jobs, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	return due, nil
}
