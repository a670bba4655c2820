// Package job stores async job records with a TTL.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Yiling-J/theine-go"

	"github.com/kailas-cloud/searchstream/internal/domain"
	domjob "github.com/kailas-cloud/searchstream/internal/domain/job"
)

// entry guards one job record; the terminal transition happens under its lock.
type entry struct {
	mu  sync.Mutex
	job domjob.Job
}

// MemoryStore keeps jobs in a bounded in-process cache. Entries expire after the TTL
// and may be evicted earlier when the cache is full.
type MemoryStore struct {
	cache     *theine.Cache[string, *entry]
	ttl       time.Duration
	closeOnce sync.Once
}

// NewMemoryStore creates an in-memory job store holding at most maxSize jobs.
func NewMemoryStore(maxSize int64, ttl time.Duration) (*MemoryStore, error) {
	c, err := theine.NewBuilder[string, *entry](maxSize).Build()
	if err != nil {
		return nil, fmt.Errorf("build job cache: %w", err)
	}
	return &MemoryStore{cache: c, ttl: ttl}, nil
}

// Create records a new job.
func (s *MemoryStore) Create(_ context.Context, j domjob.Job) error {
	if !s.cache.SetWithTTL(j.ID, &entry{job: j.Clone()}, 1, s.ttl) {
		return fmt.Errorf("job cache rejected %s", j.ID)
	}
	return nil
}

// Get returns a snapshot of the job or domain.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (domjob.Job, error) {
	e, ok := s.cache.Get(id)
	if !ok {
		return domjob.Job{}, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Complete replaces a RUNNING job with its terminal form. It reports false when the job
// already left RUNNING; a missing job is domain.ErrNotFound.
func (s *MemoryStore) Complete(_ context.Context, j domjob.Job) (bool, error) {
	e, ok := s.cache.Get(j.ID)
	if !ok {
		return false, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status != domjob.StatusRunning {
		return false, nil
	}
	e.job = j.Clone()
	return true, nil
}

// Delete removes a job.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// Ping always succeeds; the cache lives in process.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close releases the cache's background goroutines.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(s.cache.Close)
}
