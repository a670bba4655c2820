package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

const (
	defaultFacetSize = 10
	matchedAgg       = "matched_fields"
)

// SearchPage runs one page with search_after on the sort values of the previous page's last hit.
func (s *Store) SearchPage(ctx context.Context, req *db.PageRequest) (*db.PageResult, error) {
	q := req.Query
	if q.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Sort.Field == "" {
		return nil, fmt.Errorf("sort field is required")
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("size must be positive")
	}

	after, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	order := "asc"
	if q.Sort.Desc {
		order = "desc"
	}
	body := map[string]any{
		"size":  req.Size,
		"query": buildQuery(q),
		"sort":  buildSort(q.Sort, order),
	}
	if len(q.Fields) > 0 {
		body["_source"] = q.Fields
	}
	if after != nil {
		body["search_after"] = after
	}
	if req.WithFacets && len(q.Facets) > 0 {
		body["aggs"] = buildAggs(q.Facets)
	}

	doc, err := s.search(ctx, q.Index, body)
	if err != nil {
		return nil, err
	}

	rawHits := doc.Get("hits.hits").Array()
	hits := make([]db.Hit, 0, len(rawHits))
	for _, h := range rawHits {
		hits = append(hits, convertHit(h))
	}

	res := &db.PageResult{
		Total: doc.Get("hits.total.value").Int(),
		Hits:  hits,
		NextCursor: db.NextCursorFor(req.Cursor, len(hits), func() string {
			return page.EncodeToken([]string{rawHits[len(rawHits)-1].Get("sort").Raw})
		}),
	}
	if req.WithFacets {
		res.Aggregations = convertAggs(q.Facets, doc.Get("aggregations"))
	}
	return res, nil
}

// buildSort orders by the sort field, then by the tie-breaker so search_after never lands inside
// a run of equal values.
func buildSort(sort query.Sort, order string) []any {
	out := []any{map[string]any{sort.Field: map[string]any{"order": order}}}
	if sort.TieBreaker != "" && sort.TieBreaker != sort.Field {
		out = append(out, map[string]any{sort.TieBreaker: map[string]any{"order": order}})
	}
	return out
}

// CountMatches answers every field with a single filters aggregation.
func (s *Store) CountMatches(ctx context.Context, req *db.TermRequest) (map[string]int64, error) {
	out := make(map[string]int64, len(req.Fields))
	if len(req.Fields) == 0 || req.Term == "" {
		return out, nil
	}

	filters := make(map[string]any, len(req.Fields))
	for _, f := range req.Fields {
		filters[f] = map[string]any{"match": map[string]any{f: req.Term}}
	}
	body := map[string]any{
		"size":  0,
		"query": buildQuery(req.Query),
		"aggs": map[string]any{
			matchedAgg: map[string]any{"filters": map[string]any{"filters": filters}},
		},
	}

	doc, err := s.search(ctx, req.Query.Index, body)
	if err != nil {
		return nil, err
	}
	buckets := doc.Get("aggregations." + matchedAgg + ".buckets")
	for _, f := range req.Fields {
		out[f] = buckets.Get(gjson.Escape(f) + ".doc_count").Int()
	}
	return out, nil
}

// Scan pages through every match in sort order.
func (s *Store) Scan(_ context.Context, req *db.ScanRequest) db.HitIterator {
	return db.NewPageScanner(s, req)
}

func (s *Store) search(ctx context.Context, index string, body map[string]any) (gjson.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(payload)),
		s.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return gjson.Result{}, &db.Error{Op: db.OpESSearch, Err: err}
	}
	raw, err := readResponse(res)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(raw), nil
}

// --- Query building ---

func buildQuery(q query.Query) map[string]any {
	var must []any
	if !query.IsMatchAll(q.Expression) {
		must = append(must, map[string]any{
			"query_string": map[string]any{"query": strings.TrimSpace(q.Expression)},
		})
	}
	var filter []any
	for _, f := range q.Filters {
		filter = append(filter, map[string]any{"term": map[string]any{f.Field: f.Value}})
	}
	if len(must) == 0 && len(filter) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}

	b := map[string]any{}
	if len(must) > 0 {
		b["must"] = must
	}
	if len(filter) > 0 {
		b["filter"] = filter
	}
	return map[string]any{"bool": b}
}

func buildAggs(specs []query.FacetSpec) map[string]any {
	aggs := make(map[string]any, len(specs))
	for _, spec := range specs {
		if spec.IsInterval() {
			ranges := make([]any, 0, len(spec.Intervals))
			for _, iv := range spec.Intervals {
				ranges = append(ranges, rangeBucket(iv))
			}
			aggs[spec.Field] = map[string]any{"range": map[string]any{"field": spec.Field, "ranges": ranges}}
			continue
		}
		size := spec.Limit
		if size <= 0 {
			size = defaultFacetSize
		}
		aggs[spec.Field] = map[string]any{"terms": map[string]any{"field": spec.Field, "size": size}}
	}
	return aggs
}

// rangeBucket builds one keyed range. Elasticsearch excludes "to", so it is nudged up
// to keep the interval inclusive. "*" or empty leaves a side open.
func rangeBucket(interval string) map[string]any {
	r := map[string]any{"key": interval}
	lo, hi, _ := strings.Cut(interval, ",")
	if v, err := strconv.ParseFloat(strings.TrimSpace(lo), 64); err == nil {
		r["from"] = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(hi), 64); err == nil {
		r["to"] = math.Nextafter(v, math.Inf(1))
	}
	return r
}

// --- Result conversion ---

func convertHit(h gjson.Result) db.Hit {
	fields := make(map[string]string)
	h.Get("_source").ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() {
			parts := make([]string, 0)
			for _, v := range value.Array() {
				parts = append(parts, v.String())
			}
			fields[key.String()] = strings.Join(parts, ",")
			return true
		}
		fields[key.String()] = value.String()
		return true
	})
	return db.Hit{
		ID:     h.Get("_id").String(),
		Score:  h.Get("_score").Float(),
		Fields: fields,
	}
}

func convertAggs(specs []query.FacetSpec, aggs gjson.Result) facet.Aggregations {
	var out facet.Aggregations
	for _, spec := range specs {
		agg := aggs.Get(gjson.Escape(spec.Field))
		if !agg.Exists() {
			continue
		}
		var buckets []facet.Bucket
		for _, b := range agg.Get("buckets").Array() {
			buckets = append(buckets, facet.Bucket{Key: b.Get("key").String(), Count: b.Get("doc_count").Int()})
		}
		f := facet.Field{Name: spec.Field, Buckets: buckets}
		if spec.IsInterval() {
			out.Intervals = append(out.Intervals, f)
		} else {
			out.Values = append(out.Values, f)
		}
	}
	return out
}

// --- Cursor codec ---

// decodeCursor returns the raw search_after array of the previous page.
func decodeCursor(cursor string) (json.RawMessage, error) {
	if cursor == "" {
		return nil, nil
	}
	values, err := page.DecodeToken(cursor)
	if err != nil || len(values) != 1 || !gjson.Valid(values[0]) || !gjson.Parse(values[0]).IsArray() {
		return nil, &db.Error{Op: db.OpESSearch, Err: db.ErrInvalidCursor}
	}
	return json.RawMessage(values[0]), nil
}
