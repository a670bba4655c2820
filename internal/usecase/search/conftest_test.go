package search

import (
	"context"
	"strconv"
	"testing"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain/entity"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
	reposearch "github.com/kailas-cloud/searchstream/internal/repository/search"
)

// fakeStore serves n hits in offset-cursor pages and records every request.
type fakeStore struct {
	n         int
	pages     []db.PageRequest
	terms     []db.TermRequest
	scans     []db.ScanRequest
	aggs      facet.Aggregations
	searchErr error
}

func (f *fakeStore) SearchPage(_ context.Context, req *db.PageRequest) (*db.PageResult, error) {
	f.pages = append(f.pages, *req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	offset := 0
	if req.Cursor != "" {
		offset, _ = strconv.Atoi(req.Cursor)
	}
	end := min(offset+req.Size, f.n)
	hits := make([]db.Hit, 0, max(end-offset, 0))
	for i := offset; i < end; i++ {
		id := "P" + strconv.Itoa(i+1)
		hits = append(hits, db.Hit{ID: id, Fields: map[string]string{"accession": id, "gene": "G" + strconv.Itoa(i)}})
	}
	res := &db.PageResult{
		Total:      int64(f.n),
		Hits:       hits,
		NextCursor: db.NextCursorFor(req.Cursor, len(hits), func() string { return strconv.Itoa(end) }),
	}
	if req.WithFacets {
		res.Aggregations = f.aggs
	}
	return res, nil
}

func (f *fakeStore) CountMatches(_ context.Context, req *db.TermRequest) (map[string]int64, error) {
	f.terms = append(f.terms, *req)
	out := make(map[string]int64, len(req.Fields))
	for i, field := range req.Fields {
		out[field] = int64(i + 1)
	}
	return out, nil
}

func (f *fakeStore) Scan(_ context.Context, req *db.ScanRequest) db.HitIterator {
	f.scans = append(f.scans, *req)
	return db.NewPageScanner(f, req)
}

// fakeResolver prefixes fields so tests can tell resolved entities from raw hits.
type fakeResolver struct {
	calls int
	drop  map[string]bool
	err   error
}

func (r *fakeResolver) Resolve(_ context.Context, _ string, hits []db.Hit) ([]entity.Entity, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]entity.Entity, 0, len(hits))
	for _, h := range hits {
		if r.drop[h.ID] {
			continue
		}
		out = append(out, entity.Entity{ID: h.ID, Fields: map[string]string{"name": "resolved " + h.ID}})
	}
	return out, nil
}

func proteinIndex() Index {
	return Index{
		Sort:       query.Sort{Field: "seq"},
		IDField:    "accession",
		Fields:     []string{"accession", "gene"},
		TextFields: []string{"name", "gene"},
		Facets: []query.FacetSpec{
			{Field: "reviewed"},
			{Field: "length", Intervals: []string{"1,200", "201,*"}},
		},
		DefaultFilter: query.DefaultFilter{Field: "is_isoform", Value: "false"},
	}
}

func newTestService(t *testing.T, n int) (*Service, *fakeStore, *fakeResolver) {
	t.Helper()
	fs := &fakeStore{n: n}
	fr := &fakeResolver{}
	client := reposearch.New(fs, nil, nil)
	svc := New(client, fr, map[string]Index{"proteins": proteinIndex()}, Limits{MaxPageSize: 50, StreamBatchSize: 2})
	return svc, fs, fr
}
