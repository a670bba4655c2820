package search

import (
	"context"
	"strconv"
	"testing"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchPageFn   func(ctx context.Context, req *db.PageRequest) (*db.PageResult, error)
	countMatchesFn func(ctx context.Context, req *db.TermRequest) (map[string]int64, error)
	scanFn         func(ctx context.Context, req *db.ScanRequest) db.HitIterator

	pageCalls []db.PageRequest
}

func (m *mockStore) SearchPage(ctx context.Context, req *db.PageRequest) (*db.PageResult, error) {
	m.pageCalls = append(m.pageCalls, *req)
	if m.searchPageFn != nil {
		return m.searchPageFn(ctx, req)
	}
	return &db.PageResult{}, nil
}

func (m *mockStore) CountMatches(ctx context.Context, req *db.TermRequest) (map[string]int64, error) {
	if m.countMatchesFn != nil {
		return m.countMatchesFn(ctx, req)
	}
	return map[string]int64{}, nil
}

func (m *mockStore) Scan(ctx context.Context, req *db.ScanRequest) db.HitIterator {
	if m.scanFn != nil {
		return m.scanFn(ctx, req)
	}
	return db.NewPageScanner(m, req)
}

func newTestClient(t *testing.T) (*Client, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	c := New(ms, map[string]facet.Config{
		"proteins": {"reviewed": {Label: "Status", ValueLabels: map[string]string{"true": "Reviewed"}}},
	}, nil)
	return c, ms
}

// pagedHits serves hits in pages keyed by integer offsets, following the cursor contract.
func pagedHits(n int) func(ctx context.Context, req *db.PageRequest) (*db.PageResult, error) {
	return func(_ context.Context, req *db.PageRequest) (*db.PageResult, error) {
		offset := 0
		if req.Cursor != "" {
			offset, _ = strconv.Atoi(req.Cursor)
		}
		end := min(offset+req.Size, n)
		hits := make([]db.Hit, 0, max(end-offset, 0))
		for i := offset; i < end; i++ {
			hits = append(hits, db.Hit{ID: "P" + strconv.Itoa(i+1)})
		}
		return &db.PageResult{
			Total: int64(n),
			Hits:  hits,
			NextCursor: db.NextCursorFor(req.Cursor, len(hits), func() string {
				return strconv.Itoa(end)
			}),
		}, nil
	}
}
