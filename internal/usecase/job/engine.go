// Package job runs identifier mappings asynchronously on a fixed worker pool.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchstream/internal/domain"
	domjob "github.com/kailas-cloud/searchstream/internal/domain/job"
	"github.com/kailas-cloud/searchstream/internal/metrics"
)

const statusRejected = "rejected"

// Config sizes the engine.
type Config struct {
	Workers   int
	QueueSize int
	MaxIDs    int
}

// Engine accepts jobs, runs them in the background and serves their status and results.
type Engine struct {
	store  Store
	mapper Mapper
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex // guards closed against concurrent sends on queue
	closed bool
	queue  chan domjob.Job
	pool   *pool.Pool
	done   chan struct{}
}

// New starts an engine with cfg.Workers workers.
func New(store Store, mapper Mapper, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  store,
		mapper: mapper,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		queue:  make(chan domjob.Job, cfg.QueueSize),
		pool:   pool.New().WithMaxGoroutines(cfg.Workers),
		done:   make(chan struct{}),
	}
	for range cfg.Workers {
		e.pool.Go(e.work)
	}
	return e
}

// Submit validates req, records it as RUNNING and queues it. It returns the job id
// without waiting for the work. A full queue is domain.ErrCapacityExceeded and leaves no record behind.
func (e *Engine) Submit(ctx context.Context, req domjob.Request) (string, error) {
	if err := req.Validate(e.cfg.MaxIDs); err != nil {
		return "", domain.NewInvalidQuery("%s", err.Error())
	}
	if !e.mapper.Supports(req.From, req.To) {
		return "", domain.NewInvalidQuery("unsupported mapping %s -> %s", req.From, req.To)
	}

	id, err := newID(req)
	if err != nil {
		return "", fmt.Errorf("job id: %w", err)
	}
	j := domjob.NewRunning(id, req, e.now())
	if err := e.store.Create(ctx, j); err != nil {
		return "", domain.NewRetrievalFailure(fmt.Errorf("create job: %w", err))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.closed {
		// Counted before the send so a fast worker's Dec never runs first.
		metrics.JobQueueDepth.Inc()
		select {
		case e.queue <- j:
			e.logger.Info("job submitted",
				zap.String("job_id", id),
				zap.String("from", req.From),
				zap.String("to", req.To),
				zap.Int("ids", len(req.IDs)),
			)
			return id, nil
		default:
			metrics.JobQueueDepth.Dec()
		}
	}

	if err := e.store.Delete(ctx, id); err != nil {
		e.logger.Warn("failed to drop rejected job", zap.String("job_id", id), zap.Error(err))
	}
	metrics.JobsTotal.WithLabelValues(statusRejected).Inc()
	return "", fmt.Errorf("job queue full (%d): %w", e.cfg.QueueSize, domain.ErrCapacityExceeded)
}

// Status returns a consistent snapshot of the job.
func (e *Engine) Status(ctx context.Context, id string) (domjob.Job, error) {
	j, err := e.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domjob.Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domjob.Job{}, domain.NewRetrievalFailure(fmt.Errorf("get job %s: %w", id, err))
	}
	return j, nil
}

// Close stops accepting jobs, lets the workers drain the queue and waits for them
// or for ctx to expire.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
		go func() {
			e.pool.Wait()
			close(e.done)
		}()
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for job workers: %w", ctx.Err())
	}
}

func (e *Engine) work() {
	for j := range e.queue {
		metrics.JobQueueDepth.Dec()
		e.run(j)
	}
}

func (e *Engine) run(j domjob.Job) {
	ctx := context.Background()
	log := e.logger.With(zap.String("job_id", j.ID))
	start := time.Now()

	res, err := e.safeMap(ctx, j.Request)
	var final domjob.Job
	if err != nil {
		final = j.Fail(failureMessage(err), e.now())
		log.Warn("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	} else {
		final = j.Finish(res, e.now())
		log.Info("job finished",
			zap.Int("mapped", len(res.Mapped)),
			zap.Int("failed", len(res.Failed)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	ok, err := e.store.Complete(ctx, final)
	switch {
	case err != nil:
		log.Error("failed to record job result", zap.Error(err))
	case !ok:
		log.Warn("job already completed")
	default:
		metrics.JobsTotal.WithLabelValues(strings.ToLower(string(final.Status))).Inc()
	}
}

func (e *Engine) safeMap(ctx context.Context, req domjob.Request) (res domjob.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mapper panic: %v", r)
		}
	}()
	return e.mapper.Map(ctx, req)
}

// failureMessage is what a client sees for a failed job; causes stay in the logs.
func failureMessage(err error) string {
	var iq *domain.InvalidQueryError
	switch {
	case errors.As(err, &iq):
		return iq.Error()
	case errors.Is(err, domain.ErrRetrievalFailure):
		return "search backend unavailable"
	default:
		return "internal error"
	}
}

// newID hashes the request together with a ULID so identical requests get distinct ids.
func newID(req domjob.Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	h := xxhash.New()
	_, _ = h.Write(data)
	_, _ = h.Write(ulid.Make().Bytes())
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
