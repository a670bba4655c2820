package db

import (
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

// PageRequest is the input for one keyset page.
type PageRequest struct {
	Query      query.Query
	Cursor     string // backend token; empty = from the beginning
	Size       int
	WithFacets bool
}

// PageResult is the output of one keyset page.
type PageResult struct {
	Total        int64
	Hits         []Hit
	NextCursor   string
	Aggregations facet.Aggregations
}

// Hit is a single document from a search.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]string
}

// TermRequest asks for per-field hit counts of Term within Query.
type TermRequest struct {
	Query  query.Query
	Term   string
	Fields []string
}

// ScanRequest is the input for a full traversal.
type ScanRequest struct {
	Query     query.Query
	BatchSize int
}

// NextCursorFor applies the cursor contract: an empty page keeps the cursor where it was.
func NextCursorFor(current string, hits int, next func() string) string {
	if hits == 0 {
		return current
	}
	return next()
}
