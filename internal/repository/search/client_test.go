package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

func proteinQuery() query.Query {
	return query.Query{Index: "proteins", Sort: query.Sort{Field: "seq"}}
}

// --- FetchPage ---

func TestFetchPage_FirstPage(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(3)

	res, err := c.FetchPage(context.Background(), proteinQuery(), "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.pageCalls[0].Cursor != "" {
		t.Errorf("start must reach the backend as an empty cursor, got %q", ms.pageCalls[0].Cursor)
	}
	if ms.pageCalls[0].Query.Expression != query.MatchAll {
		t.Errorf("empty expression must be normalized, got %q", ms.pageCalls[0].Query.Expression)
	}
	if len(res.Content()) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(res.Content()))
	}

	info, ok := res.TakePage()
	if !ok {
		t.Fatal("expected page info")
	}
	if info.Cursor() != page.Start || info.NextCursor() != "2" || info.TotalElements() != 3 {
		t.Errorf("unexpected page info: %+v", info)
	}
	if !info.HasNext() {
		t.Error("expected more pages")
	}
	if _, ok := res.TakePage(); ok {
		t.Error("page info must only be taken once")
	}
}

func TestFetchPage_DefaultSize(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(0)

	if _, err := c.FetchPage(context.Background(), proteinQuery(), page.Start, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.pageCalls[0].Size != page.DefaultSize {
		t.Errorf("size = %d, want %d", ms.pageCalls[0].Size, page.DefaultSize)
	}
}

func TestFetchPage_ExhaustedKeepsCursor(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(3)

	res, err := c.FetchPage(context.Background(), proteinQuery(), "3", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, _ := res.TakePage()
	if info.NextCursor() != "3" || info.HasNext() {
		t.Errorf("exhausted page must return its own cursor, got %+v", info)
	}
	if len(res.Content()) != 0 {
		t.Errorf("expected no hits, got %d", len(res.Content()))
	}
}

func TestFetchPage_EmptyResultFromStart(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(0)

	res, err := c.FetchPage(context.Background(), proteinQuery(), page.Start, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, _ := res.TakePage()
	if info.NextCursor() != page.Start || info.HasNext() {
		t.Errorf("expected exhausted start page, got %+v", info)
	}
}

func TestFetchPage_FacetsFirstPageOnly(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = func(_ context.Context, req *db.PageRequest) (*db.PageResult, error) {
		res := &db.PageResult{Total: 4, Hits: []db.Hit{{ID: "P1"}}, NextCursor: "x"}
		if req.WithFacets {
			res.Aggregations = facet.Aggregations{
				Values: []facet.Field{{Name: "reviewed", Buckets: []facet.Bucket{{Key: "true", Count: 3}}}},
			}
		}
		return res, nil
	}

	q := proteinQuery()
	q.Facets = []query.FacetSpec{{Field: "reviewed"}}

	first, err := c.FetchPage(context.Background(), q, page.Start, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	facets := first.Facets()
	if len(facets) != 1 || facets[0].Label != "Status" || facets[0].Values[0].Label != "Reviewed" {
		t.Errorf("unexpected facets: %+v", facets)
	}

	next, err := c.FetchPage(context.Background(), q, "x0", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.pageCalls[1].WithFacets {
		t.Error("facets must not be requested after the first page")
	}
	if next.Facets() != nil {
		t.Errorf("expected no facets, got %+v", next.Facets())
	}
}

func TestFetchPage_MatchedFields(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(1)
	ms.countMatchesFn = func(_ context.Context, req *db.TermRequest) (map[string]int64, error) {
		if req.Term != "kinase" {
			t.Errorf("unexpected term: %q", req.Term)
		}
		return map[string]int64{"gene": 1, "name": 7}, nil
	}

	q := proteinQuery()
	q.Term = "kinase"
	q.MatchedFields = []string{"name", "gene", "organism"}

	res, err := c.FetchPage(context.Background(), q, page.Start, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fmt.Sprint(res.MatchedFields())
	if got != "[{name 7} {gene 1} {organism 0}]" {
		t.Errorf("matched fields = %s", got)
	}
}

func TestFetchPage_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name    string
		backend error
		want    error
	}{
		{"syntax", &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%w: near ((", db.ErrQuerySyntax)}, domain.ErrInvalidQuery},
		{"cursor", &db.Error{Op: db.OpSearch, Err: db.ErrInvalidCursor}, domain.ErrInvalidQuery},
		{"index", &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}, domain.ErrRetrievalFailure},
		{"transport", &db.Error{Op: db.OpSearch, Err: context.DeadlineExceeded}, domain.ErrRetrievalFailure},
		{"plain", errors.New("boom"), domain.ErrRetrievalFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, ms := newTestClient(t)
			ms.searchPageFn = func(context.Context, *db.PageRequest) (*db.PageResult, error) {
				return nil, tc.backend
			}

			_, err := c.FetchPage(context.Background(), proteinQuery(), page.Start, 10)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFetchPage_SyntaxDetail(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = func(context.Context, *db.PageRequest) (*db.PageResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%w: near ((", db.ErrQuerySyntax)}
	}

	_, err := c.FetchPage(context.Background(), proteinQuery(), page.Start, 10)
	var iq *domain.InvalidQueryError
	if !errors.As(err, &iq) {
		t.Fatalf("expected InvalidQueryError, got %T", err)
	}
	if iq.Detail != "db: query syntax error: near ((" {
		t.Errorf("detail = %q", iq.Detail)
	}
}

func TestFetchPage_LogsFailedQuery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ms := &mockStore{searchPageFn: func(context.Context, *db.PageRequest) (*db.PageResult, error) {
		return nil, errors.New("connection refused")
	}}
	c := New(ms, nil, zap.New(core))

	q := proteinQuery()
	q.Expression = "gene:BRCA1"
	_, _ = c.FetchPage(context.Background(), q, page.Start, 10)

	entries := logs.FilterMessage("backend query").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["expression"] != "gene:BRCA1" || fields["outcome"] != outcomeFailure {
		t.Errorf("unexpected log fields: %v", fields)
	}
	if _, ok := fields["error"]; !ok {
		t.Error("expected error field")
	}
}

// --- FetchSingle ---

func TestFetchSingle_Found(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(5)

	q := proteinQuery()
	q.Facets = []query.FacetSpec{{Field: "reviewed"}}
	hit, ok, err := c.FetchSingle(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || hit.ID != "P1" {
		t.Errorf("unexpected hit: %+v, %v", hit, ok)
	}
	if ms.pageCalls[0].Size != 1 || ms.pageCalls[0].WithFacets {
		t.Errorf("unexpected request: %+v", ms.pageCalls[0])
	}
}

func TestFetchSingle_NotFound(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(0)

	_, ok, err := c.FetchSingle(context.Background(), proteinQuery())
	if err != nil || ok {
		t.Fatalf("expected no hit, got ok=%v err=%v", ok, err)
	}
}

// --- FetchAll ---

func TestFetchAll_Unbounded(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = pagedHits(250)

	hits, err := db.Drain(context.Background(), c.FetchAll(context.Background(), proteinQuery(), 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 250 {
		t.Errorf("expected 250 hits, got %d", len(hits))
	}
}

func TestFetchAll_TranslatesErrors(t *testing.T) {
	c, ms := newTestClient(t)
	ms.searchPageFn = func(context.Context, *db.PageRequest) (*db.PageResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: db.ErrQuerySyntax}
	}

	_, err := db.Drain(context.Background(), c.FetchAll(context.Background(), proteinQuery(), 10))
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}
