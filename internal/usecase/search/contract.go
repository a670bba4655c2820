package search

import (
	"context"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain/entity"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
	"github.com/kailas-cloud/searchstream/internal/domain/result"
	reposearch "github.com/kailas-cloud/searchstream/internal/repository/search"
)

// Client runs paged and unbounded queries against the search backend.
type Client interface {
	FetchPage(ctx context.Context, q query.Query, cursor string, size int) (*result.QueryResult[db.Hit], error)
	FetchAll(ctx context.Context, q query.Query, batchSize int) db.HitIterator
	Iterate(q query.Query, size int) *reposearch.BatchIterator
}

// Resolver turns hits into full entities.
type Resolver interface {
	Resolve(ctx context.Context, index string, hits []db.Hit) ([]entity.Entity, error)
}
