package db

import (
	"context"
	"time"
)

// Store is the search backend facade.
type Store interface {
	Pinger
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Searcher runs page queries against a search index.
type Searcher interface {
	// SearchPage returns one page after req.Cursor. NextCursor equals req.Cursor when no hits came back.
	SearchPage(ctx context.Context, req *PageRequest) (*PageResult, error)
	// CountMatches returns, per field, how many documents matching req also match term in that field.
	CountMatches(ctx context.Context, req *TermRequest) (map[string]int64, error)
	// Scan walks every match with the backend's own traversal; order is backend-defined.
	Scan(ctx context.Context, req *ScanRequest) HitIterator
}

// HashStore provides hash-based key-value operations (Redis only).
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	// HSetIfEquals writes fields only while field currently holds expected. Reports whether it wrote.
	HSetIfEquals(ctx context.Context, key, field, expected string, fields map[string]string) (bool, error)
	Del(ctx context.Context, key string) error
}

// HitIterator streams hits. Next returns ErrIteratorDone after the last hit.
type HitIterator interface {
	Next(ctx context.Context) (Hit, error)
	Stop()
}
