package bleve

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

// idSort breaks ties between equal sort values so SearchAfter never skips or repeats a hit.
const idSort = "_id"

const defaultFacetSize = 10

// SearchPage runs one page with SearchAfter on the hit sort values of the previous page.
func (s *Store) SearchPage(_ context.Context, req *db.PageRequest) (*db.PageResult, error) {
	q := req.Query
	if q.Sort.Field == "" {
		return nil, fmt.Errorf("sort field is required")
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("size must be positive")
	}
	idx, err := s.index(q.Index)
	if err != nil {
		return nil, err
	}

	after, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	bq, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	sr := bleve.NewSearchRequestOptions(bq, req.Size, 0, false)
	sr.SortBy(sortOrder(q.Sort))
	sr.Fields = returnFields(q.Fields)
	if after != nil {
		sr.SetSearchAfter(after)
	}
	if req.WithFacets {
		for _, spec := range q.Facets {
			sr.AddFacet(spec.Field, facetRequest(spec))
		}
	}

	res, err := idx.Search(sr)
	if err != nil {
		return nil, &db.Error{Op: db.OpBleveSearch, Err: err}
	}

	hits := make([]db.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, convertHit(h))
	}

	out := &db.PageResult{
		Total: int64(res.Total),
		Hits:  hits,
		NextCursor: db.NextCursorFor(req.Cursor, len(hits), func() string {
			return encodeCursor(res.Hits[len(res.Hits)-1].Sort)
		}),
	}
	if req.WithFacets {
		out.Aggregations = convertFacets(q.Facets, res.Facets)
	}
	return out, nil
}

// CountMatches runs one zero-size search per field.
func (s *Store) CountMatches(_ context.Context, req *db.TermRequest) (map[string]int64, error) {
	out := make(map[string]int64, len(req.Fields))
	if len(req.Fields) == 0 || req.Term == "" {
		return out, nil
	}
	idx, err := s.index(req.Query.Index)
	if err != nil {
		return nil, err
	}
	base, err := buildQuery(req.Query)
	if err != nil {
		return nil, err
	}

	for _, f := range req.Fields {
		mq := bleve.NewMatchQuery(req.Term)
		mq.SetField(f)
		sr := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(base, mq), 0, 0, false)
		res, err := idx.Search(sr)
		if err != nil {
			return nil, &db.Error{Op: db.OpBleveSearch, Err: err}
		}
		out[f] = int64(res.Total)
	}
	return out, nil
}

// Scan pages through every match in sort order.
func (s *Store) Scan(_ context.Context, req *db.ScanRequest) db.HitIterator {
	return db.NewPageScanner(s, req)
}

// --- Query building ---

// buildQuery parses the expression with the query string syntax and adds exact-match filters.
func buildQuery(q query.Query) (blevequery.Query, error) {
	var parts []blevequery.Query
	if !query.IsMatchAll(q.Expression) {
		qs := bleve.NewQueryStringQuery(strings.TrimSpace(q.Expression))
		if _, err := qs.Parse(); err != nil {
			return nil, &db.Error{Op: db.OpBleveSearch, Err: fmt.Errorf("%w: %v", db.ErrQuerySyntax, err)}
		}
		parts = append(parts, qs)
	}
	for _, f := range q.Filters {
		tq := bleve.NewTermQuery(f.Value)
		tq.SetField(f.Field)
		parts = append(parts, tq)
	}

	switch len(parts) {
	case 0:
		return bleve.NewMatchAllQuery(), nil
	case 1:
		return parts[0], nil
	default:
		return bleve.NewConjunctionQuery(parts...), nil
	}
}

func sortOrder(s query.Sort) []string {
	field := s.Field
	if s.Desc {
		field = "-" + field
	}
	return []string{field, idSort}
}

func returnFields(fields []string) []string {
	if len(fields) == 0 {
		return []string{"*"}
	}
	return fields
}

func facetRequest(spec query.FacetSpec) *bleve.FacetRequest {
	size := spec.Limit
	if size <= 0 {
		size = defaultFacetSize
	}
	if !spec.IsInterval() {
		return bleve.NewFacetRequest(spec.Field, size)
	}

	fr := bleve.NewFacetRequest(spec.Field, len(spec.Intervals))
	for _, iv := range spec.Intervals {
		lo, hi := intervalBounds(iv)
		fr.AddNumericRange(iv, lo, hi)
	}
	return fr
}

// intervalBounds turns "lo,hi" into bleve range bounds. Bleve ranges exclude the maximum,
// so the upper bound is nudged up to keep it inclusive. "*" or empty leaves a side open.
func intervalBounds(interval string) (lo, hi *float64) {
	l, h, _ := strings.Cut(interval, ",")
	if v, err := strconv.ParseFloat(strings.TrimSpace(l), 64); err == nil {
		lo = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(h), 64); err == nil {
		v = math.Nextafter(v, math.Inf(1))
		hi = &v
	}
	return lo, hi
}

// --- Result conversion ---

func convertHit(h *search.DocumentMatch) db.Hit {
	fields := make(map[string]string, len(h.Fields))
	for k, v := range h.Fields {
		fields[k] = stringify(v)
	}
	return db.Hit{ID: h.ID, Score: h.Score, Fields: fields}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

// convertFacets keeps interval buckets in configured order; bleve sorts them by count.
func convertFacets(specs []query.FacetSpec, results search.FacetResults) facet.Aggregations {
	var aggs facet.Aggregations
	for _, spec := range specs {
		fr, ok := results[spec.Field]
		if !ok || fr == nil {
			continue
		}
		if spec.IsInterval() {
			counts := make(map[string]int64, len(fr.NumericRanges))
			for _, r := range fr.NumericRanges {
				counts[r.Name] = int64(r.Count)
			}
			buckets := make([]facet.Bucket, 0, len(spec.Intervals))
			for _, iv := range spec.Intervals {
				buckets = append(buckets, facet.Bucket{Key: iv, Count: counts[iv]})
			}
			aggs.Intervals = append(aggs.Intervals, facet.Field{Name: spec.Field, Buckets: buckets})
			continue
		}

		var buckets []facet.Bucket
		if fr.Terms != nil {
			for _, t := range fr.Terms.Terms() {
				buckets = append(buckets, facet.Bucket{Key: t.Term, Count: int64(t.Count)})
			}
		}
		aggs.Values = append(aggs.Values, facet.Field{Name: spec.Field, Buckets: buckets})
	}
	return aggs
}

// --- Cursor codec ---

// Sort values of numeric fields are prefix-coded bytes, so each one is base64 wrapped.
func encodeCursor(sortValues []string) string {
	enc := make([]string, len(sortValues))
	for i, v := range sortValues {
		enc[i] = base64.RawURLEncoding.EncodeToString([]byte(v))
	}
	return page.EncodeToken(enc)
}

func decodeCursor(cursor string) ([]string, error) {
	if cursor == "" {
		return nil, nil
	}
	invalid := &db.Error{Op: db.OpBleveSearch, Err: db.ErrInvalidCursor}
	values, err := page.DecodeToken(cursor)
	if err != nil || len(values) != 2 {
		return nil, invalid
	}
	out := make([]string, len(values))
	for i, v := range values {
		raw, err := base64.RawURLEncoding.DecodeString(v)
		if err != nil {
			return nil, invalid
		}
		out[i] = string(raw)
	}
	return out, nil
}
