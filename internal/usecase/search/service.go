package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/domain/entity"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
	"github.com/kailas-cloud/searchstream/internal/domain/result"
)

// Index holds the per-index settings applied to every request.
type Index struct {
	Sort          query.Sort
	IDField       string
	Fields        []string          // returned fields; empty = all
	TextFields    []string          // fields counted for matched-field diagnostics
	Facets        []query.FacetSpec // facets a client may ask for, in display order
	DefaultFilter query.DefaultFilter
}

// Request is a client search against one index.
type Request struct {
	Expression        string
	Filters           []query.Filter
	Facets            []string // facet fields; empty = none
	ShowMatchedFields bool
	Cursor            string
	Size              int
}

// Limits bounds page and stream sizes.
type Limits struct {
	DefaultPageSize int // used when a request names no size
	MaxPageSize     int
	StreamBatchSize int
}

// Service orchestrates paged and streamed searches.
type Service struct {
	client   Client
	entities Resolver
	indexes  map[string]Index
	limits   Limits
}

// New creates a search service.
func New(client Client, entities Resolver, indexes map[string]Index, limits Limits) *Service {
	return &Service{client: client, entities: entities, indexes: indexes, limits: limits}
}

// HasIndex reports whether name is a configured index.
func (s *Service) HasIndex(name string) bool {
	_, ok := s.indexes[name]
	return ok
}

// Columns returns the output fields of an index, id first.
func (s *Service) Columns(name string) []string {
	idx := s.indexes[name]
	cols := make([]string, 0, len(idx.Fields)+1)
	cols = append(cols, entity.IDKey)
	for _, f := range idx.Fields {
		if f != entity.IDKey {
			cols = append(cols, f)
		}
	}
	return cols
}

// Page returns one page of resolved entities. Facets and matched fields come with the first page only.
func (s *Service) Page(ctx context.Context, index string, req Request) (*result.QueryResult[entity.Entity], error) {
	if s.limits.MaxPageSize > 0 && req.Size > s.limits.MaxPageSize {
		return nil, domain.NewInvalidQuery("size must not exceed %d", s.limits.MaxPageSize)
	}
	if req.Size <= 0 {
		req.Size = s.limits.DefaultPageSize
	}
	q, err := s.query(index, req)
	if err != nil {
		return nil, err
	}

	res, err := s.client.FetchPage(ctx, q, req.Cursor, req.Size)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	ents, err := s.entities.Resolve(ctx, index, res.Content())
	if err != nil {
		return nil, fmt.Errorf("resolve entities: %w", err)
	}

	var info *page.Info
	if p, ok := res.TakePage(); ok {
		info = &p
	}
	return result.New(ents, info).
		WithFacets(res.Facets()).
		WithMatchedFields(res.MatchedFields()), nil
}

// Stream returns every matching entity, one backend page at a time.
// The caller must Close the sequence.
func (s *Service) Stream(ctx context.Context, index string, req Request) (*Entities, error) {
	req.Facets = nil
	req.ShowMatchedFields = false
	q, err := s.query(index, req)
	if err != nil {
		return nil, err
	}
	it := s.client.Iterate(q, s.limits.StreamBatchSize)
	return &Entities{index: index, it: it, resolver: s.entities}, nil
}

// StreamIDs walks every match with the backend's own traversal and yields entities
// built from the hit fields, skipping the entity store.
func (s *Service) StreamIDs(ctx context.Context, index string, req Request) (*Hits, error) {
	req.Facets = nil
	req.ShowMatchedFields = false
	q, err := s.query(index, req)
	if err != nil {
		return nil, err
	}
	return &Hits{it: s.client.FetchAll(ctx, q, s.limits.StreamBatchSize), idField: s.indexes[index].IDField}, nil
}

func (s *Service) query(index string, req Request) (query.Query, error) {
	idx, ok := s.indexes[index]
	if !ok {
		return query.Query{}, fmt.Errorf("index %q: %w", index, domain.ErrNotFound)
	}

	q := query.Query{
		Index:      index,
		Expression: req.Expression,
		Filters:    req.Filters,
		Sort:       idx.Sort,
		Fields:     idx.Fields,
	}
	for _, name := range req.Facets {
		spec, ok := facetSpec(idx.Facets, name)
		if !ok {
			return query.Query{}, domain.NewInvalidQuery("unknown facet %q", name)
		}
		q.Facets = append(q.Facets, spec)
	}
	if req.ShowMatchedFields {
		if term := freeText(req.Expression); term != "" {
			q.Term = term
			q.MatchedFields = idx.TextFields
		}
	}
	return idx.DefaultFilter.Apply(q), nil
}

func facetSpec(specs []query.FacetSpec, field string) (query.FacetSpec, bool) {
	for _, f := range specs {
		if f.Field == field {
			return f, true
		}
	}
	return query.FacetSpec{}, false
}

// freeText returns expr when it is a bare term: no field qualifier, operator or wildcard.
func freeText(expr string) string {
	expr = strings.TrimSpace(expr)
	if query.IsMatchAll(expr) || strings.ContainsAny(expr, ":()*\"") {
		return ""
	}
	for _, tok := range strings.Fields(expr) {
		switch tok {
		case "AND", "OR", "NOT":
			return ""
		}
	}
	return expr
}
