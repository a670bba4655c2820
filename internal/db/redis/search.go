package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/rueidis"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

// SearchPage runs one keyset page via FT.SEARCH on a NUMERIC sort field.
// FT.SEARCH sorts by a single field, so equal sort values are handled in the cursor: it carries the
// last value, the keys already returned with that value and the first page's total (FT.SEARCH only
// counts documents past the keyset bound). The next page starts at the last value inclusively and
// drops those keys, so a group of equal values spanning pages is returned exactly once.
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

	ks, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	expr := buildExpression(q)
	if ks.started() {
		expr = joinClauses(expr, keysetClause(q.Sort, ks.after))
	}

	dir := "ASC"
	if q.Sort.Desc {
		dir = "DESC"
	}
	args := []string{q.Index, expr, "SORTBY", q.Sort.Field, dir}
	if len(q.Fields) > 0 {
		fields := withField(q.Fields, q.Sort.Field)
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	}
	limit := req.Size + len(ks.seen)
	args = append(args, "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, wrapErr(db.OpSearch, err)
	}

	total, hits, err := parseSearchResult(raw)
	if err != nil {
		return nil, err
	}
	if ks.started() {
		total = ks.total
		hits = ks.unseen(hits, q.Sort.Field, req.Size)
	}

	res := &db.PageResult{
		Total: total,
		Hits:  hits,
		NextCursor: db.NextCursorFor(req.Cursor, len(hits), func() string {
			return ks.next(hits, q.Sort.Field, total).encode()
		}),
	}

	if req.WithFacets && len(q.Facets) > 0 {
		aggs, err := s.aggregate(ctx, q)
		if err != nil {
			return nil, err
		}
		res.Aggregations = aggs
	}
	return res, nil
}

// CountMatches counts term hits per field with one pipelined FT.SEARCH ... LIMIT 0 0 per field.
func (s *Store) CountMatches(ctx context.Context, req *db.TermRequest) (map[string]int64, error) {
	if len(req.Fields) == 0 || req.Term == "" {
		return map[string]int64{}, nil
	}

	base := buildExpression(req.Query)
	cmds := make(rueidis.Commands, len(req.Fields))
	for i, f := range req.Fields {
		expr := joinClauses(base, fmt.Sprintf("@%s:(%s)", f, escapeQuery(req.Term)))
		cmds[i] = s.b().Arbitrary("FT.SEARCH").
			Args(req.Query.Index, expr, "LIMIT", "0", "0", "DIALECT", "2").Build()
	}

	out := make(map[string]int64, len(req.Fields))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		raw, err := res.ToArray()
		if err != nil {
			return nil, wrapErr(db.OpSearch, err)
		}
		n, err := parseTotal(raw)
		if err != nil {
			return nil, err
		}
		out[req.Fields[i]] = n
	}
	return out, nil
}

// aggregate runs facet aggregations concurrently: FT.AGGREGATE GROUPBY for value facets and
// one counting FT.SEARCH per interval for range facets.
func (s *Store) aggregate(ctx context.Context, q query.Query) (facet.Aggregations, error) {
	expr := buildExpression(q)

	values := make([]facet.Field, 0, len(q.Facets))
	intervals := make([]facet.Field, 0, len(q.Facets))
	for _, spec := range q.Facets {
		if spec.IsInterval() {
			intervals = append(intervals, facet.Field{Name: spec.Field, Buckets: make([]facet.Bucket, len(spec.Intervals))})
		} else {
			values = append(values, facet.Field{Name: spec.Field})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	vi, ii := 0, 0
	for _, spec := range q.Facets {
		if spec.IsInterval() {
			target := &intervals[ii]
			ii++
			for j, iv := range spec.Intervals {
				g.Go(func() error {
					n, err := s.countInterval(gctx, q.Index, expr, spec.Field, iv)
					if err != nil {
						return err
					}
					target.Buckets[j] = facet.Bucket{Key: iv, Count: n}
					return nil
				})
			}
			continue
		}
		target := &values[vi]
		vi++
		g.Go(func() error {
			buckets, err := s.groupBy(gctx, q.Index, expr, spec)
			if err != nil {
				return err
			}
			target.Buckets = buckets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return facet.Aggregations{}, err
	}
	return facet.Aggregations{Values: values, Intervals: intervals}, nil
}

func (s *Store) groupBy(ctx context.Context, index, expr string, spec query.FacetSpec) ([]facet.Bucket, error) {
	limit := spec.Limit
	if limit <= 0 {
		limit = 10
	}
	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(
		index, expr,
		"GROUPBY", "1", "@"+spec.Field,
		"REDUCE", "COUNT", "0", "AS", "count",
		"SORTBY", "2", "@count", "DESC",
		"MAX", strconv.Itoa(limit),
		"DIALECT", "2",
	).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, wrapErr(db.OpAggregate, err)
	}

	buckets := make([]facet.Bucket, 0, len(raw))
	// [num_groups, [field, value, count, n], ...]
	for i := 1; i < len(raw); i++ {
		row, err := raw[i].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(row)
		n, err := strconv.ParseInt(fields["count"], 10, 64)
		if err != nil {
			continue
		}
		buckets = append(buckets, facet.Bucket{Key: fields[spec.Field], Count: n})
	}
	return buckets, nil
}

func (s *Store) countInterval(ctx context.Context, index, expr, field, interval string) (int64, error) {
	lo, hi, _ := strings.Cut(interval, ",")
	clause := fmt.Sprintf("@%s:[%s %s]", field, rangeBound(lo, "-inf"), rangeBound(hi, "+inf"))
	cmd := s.b().Arbitrary("FT.SEARCH").
		Args(index, joinClauses(expr, clause), "LIMIT", "0", "0", "DIALECT", "2").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, wrapErr(db.OpSearch, err)
	}
	return parseTotal(raw)
}

// --- Result parsing ---

func parseTotal(raw []rueidis.RedisMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse total: %w", err)
	}
	return total, nil
}

func parseSearchResult(raw []rueidis.RedisMessage) (int64, []db.Hit, error) {
	total, err := parseTotal(raw)
	if err != nil || total == 0 {
		return total, nil, err
	}

	hits := make([]db.Hit, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		hits = append(hits, db.Hit{
			ID:     key,
			Fields: parseFieldPairs(fields),
		})
	}

	return total, hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query building ---

// buildExpression combines the expression with exact-match filters as TAG clauses.
func buildExpression(q query.Query) string {
	var parts []string
	if !query.IsMatchAll(q.Expression) {
		parts = append(parts, "("+strings.TrimSpace(q.Expression)+")")
	}
	for _, f := range q.Filters {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", f.Field, tagEscaper.Replace(f.Value)))
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// joinClauses intersects expr with clause; "*" on its own would make the intersection invalid.
func joinClauses(expr, clause string) string {
	if expr == "*" {
		return clause
	}
	return expr + " " + clause
}

func keysetClause(sort query.Sort, after string) string {
	if sort.Desc {
		return fmt.Sprintf("@%s:[-inf %s]", sort.Field, after)
	}
	return fmt.Sprintf("@%s:[%s +inf]", sort.Field, after)
}

// keyset is the decoded position of a redis cursor.
type keyset struct {
	after string
	total int64
	seen  []string // keys already returned whose sort value equals after
}

func (k keyset) started() bool { return k.after != "" }

// unseen drops hits returned by earlier pages and keeps at most size.
func (k keyset) unseen(hits []db.Hit, field string, size int) []db.Hit {
	out := make([]db.Hit, 0, min(len(hits), size))
	for _, h := range hits {
		if len(out) == size {
			break
		}
		if h.Fields[field] == k.after && slices.Contains(k.seen, h.ID) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// next is the position after hits, which must be non-empty.
func (k keyset) next(hits []db.Hit, field string, total int64) keyset {
	last := hits[len(hits)-1].Fields[field]
	n := keyset{after: last, total: total}
	if last == k.after {
		n.seen = slices.Clone(k.seen)
	}
	for _, h := range hits {
		if h.Fields[field] == last {
			n.seen = append(n.seen, h.ID)
		}
	}
	return n
}

func (k keyset) encode() string {
	values := append([]string{k.after, strconv.FormatInt(k.total, 10)}, k.seen...)
	return page.EncodeToken(values)
}

func rangeBound(v, open string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "*" {
		return open
	}
	return v
}

func decodeCursor(cursor string) (keyset, error) {
	if cursor == "" {
		return keyset{}, nil
	}
	invalid := &db.Error{Op: db.OpSearch, Err: db.ErrInvalidCursor}
	values, err := page.DecodeToken(cursor)
	if err != nil || len(values) < 2 {
		return keyset{}, invalid
	}
	if _, err := strconv.ParseFloat(values[0], 64); err != nil {
		return keyset{}, invalid
	}
	total, err := strconv.ParseInt(values[1], 10, 64)
	if err != nil {
		return keyset{}, invalid
	}
	return keyset{after: values[0], total: total, seen: values[2:]}, nil
}

func withField(fields []string, field string) []string {
	for _, f := range fields {
		if f == field {
			return fields
		}
	}
	return append(append(make([]string, 0, len(fields)+1), fields...), field)
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"|", "\\|",
	"[", "\\[",
	"]", "\\]",
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)
