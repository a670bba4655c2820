package job

import (
	"context"

	domjob "github.com/kailas-cloud/searchstream/internal/domain/job"
)

// Store keeps job records until their TTL expires.
type Store interface {
	Create(ctx context.Context, j domjob.Job) error
	Get(ctx context.Context, id string) (domjob.Job, error)
	// Complete applies a terminal transition only while the stored job is RUNNING.
	Complete(ctx context.Context, j domjob.Job) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Mapper does the work of one job.
type Mapper interface {
	Supports(from, to string) bool
	Map(ctx context.Context, req domjob.Request) (domjob.Result, error)
}
