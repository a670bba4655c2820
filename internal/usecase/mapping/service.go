// Package mapping resolves identifiers of one type into identifiers of another.
package mapping

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/domain/entity"
	"github.com/kailas-cloud/searchstream/internal/domain/job"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

// Searcher looks up the first hit of an exact query.
type Searcher interface {
	FetchSingle(ctx context.Context, q query.Query) (db.Hit, bool, error)
}

// Rule maps From identifiers onto To identifiers through one index.
type Rule struct {
	From      string
	To        string
	Index     string
	FromField string
	ToField   string
	Sort      query.Sort
}

type ruleKey struct{ from, to string }

// Service runs identifier mappings.
type Service struct {
	client Searcher
	rules  map[ruleKey]Rule
}

// New creates a mapping service. Later rules for the same pair win.
func New(client Searcher, rules []Rule) *Service {
	m := make(map[ruleKey]Rule, len(rules))
	for _, r := range rules {
		m[ruleKey{r.From, r.To}] = r
	}
	return &Service{client: client, rules: m}
}

// Supports reports whether a rule exists for from -> to.
func (s *Service) Supports(from, to string) bool {
	_, ok := s.rules[ruleKey{from, to}]
	return ok
}

// Map looks up every distinct input ID once. IDs without a match, or whose match has
// no target value, end up in Failed; no ID lands in both lists.
// A retrieval failure aborts the whole mapping.
func (s *Service) Map(ctx context.Context, req job.Request) (job.Result, error) {
	rule, ok := s.rules[ruleKey{req.From, req.To}]
	if !ok {
		return job.Result{}, domain.NewInvalidQuery("unsupported mapping %s -> %s", req.From, req.To)
	}

	ids := req.DistinctIDs()
	res := job.Result{
		Mapped: make([]job.Pair, 0, len(ids)),
		Failed: make([]string, 0),
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return job.Result{}, err
		}
		q := query.Exact(rule.Index, rule.FromField, id, rule.Sort)
		q.Fields = []string{rule.ToField}

		hit, found, err := s.client.FetchSingle(ctx, q)
		if err != nil {
			return job.Result{}, fmt.Errorf("map %s %q: %w", req.From, id, err)
		}
		to := target(hit, rule.ToField)
		if !found || to == "" {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Mapped = append(res.Mapped, job.Pair{From: id, To: to})
	}
	return res, nil
}

func target(hit db.Hit, field string) string {
	if v := hit.Fields[field]; v != "" {
		return v
	}
	if field == entity.IDKey {
		return hit.ID
	}
	return ""
}
