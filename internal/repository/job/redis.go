package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain"
	domjob "github.com/kailas-cloud/searchstream/internal/domain/job"
)

// KeyPrefix namespaces job hashes.
const KeyPrefix = "searchstream:job:"

const (
	fieldStatus = "status"
	fieldData   = "data"
)

// hashStore is the consumer interface for job hashes (ISP).
type hashStore interface {
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSetIfEquals(ctx context.Context, key, field, expected string, fields map[string]string) (bool, error)
	Del(ctx context.Context, key string) error
}

// pinger is satisfied by the Redis store.
type pinger interface {
	Ping(ctx context.Context) error
}

// RedisStore keeps jobs as hashes {status, data} so several instances can share them.
// The terminal transition is a compare-and-set on status executed server side.
type RedisStore struct {
	store hashStore
	ping  pinger
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed job store. p may be nil.
func NewRedisStore(s hashStore, p pinger, ttl time.Duration) *RedisStore {
	return &RedisStore{store: s, ping: p, ttl: ttl}
}

// Create records a new job with the store TTL.
func (s *RedisStore) Create(ctx context.Context, j domjob.Job) error {
	fields, err := jobFields(j)
	if err != nil {
		return err
	}
	if err := s.store.HSetWithTTL(ctx, jobKey(j.ID), fields, s.ttl); err != nil {
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return nil
}

// Get returns the job or domain.ErrNotFound once it expired.
func (s *RedisStore) Get(ctx context.Context, id string) (domjob.Job, error) {
	m, err := s.store.HGetAll(ctx, jobKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domjob.Job{}, domain.ErrNotFound
		}
		return domjob.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var j domjob.Job
	if err := json.Unmarshal([]byte(m[fieldData]), &j); err != nil {
		return domjob.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return j, nil
}

// Complete writes the terminal form only while the stored status is still RUNNING.
// An expired job reports false.
func (s *RedisStore) Complete(ctx context.Context, j domjob.Job) (bool, error) {
	fields, err := jobFields(j)
	if err != nil {
		return false, err
	}
	ok, err := s.store.HSetIfEquals(ctx, jobKey(j.ID), fieldStatus, string(domjob.StatusRunning), fields)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", j.ID, err)
	}
	return ok, nil
}

// Delete removes a job.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Del(ctx, jobKey(id)); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// Ping checks the underlying connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping.Ping(ctx)
}

// Close is a no-op; the connection belongs to the search store.
func (s *RedisStore) Close() {}

func jobKey(id string) string { return KeyPrefix + id }

func jobFields(j domjob.Job) (map[string]string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return map[string]string{fieldStatus: string(j.Status), fieldData: string(data)}, nil
}
