package search

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
	"github.com/kailas-cloud/searchstream/internal/domain/result"
	"github.com/kailas-cloud/searchstream/internal/logger"
	"github.com/kailas-cloud/searchstream/internal/metrics"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchPage(ctx context.Context, req *db.PageRequest) (*db.PageResult, error)
	CountMatches(ctx context.Context, req *db.TermRequest) (map[string]int64, error)
	Scan(ctx context.Context, req *db.ScanRequest) db.HitIterator
}

// Backend ops and outcomes for the request duration histogram.
const (
	opPage  = "page"
	opTerms = "terms"

	outcomeOK           = "ok"
	outcomeInvalidQuery = "invalid_query"
	outcomeFailure      = "failure"
)

// Client runs cursor-paginated queries and translates backend errors into domain errors.
// It never returns driver error types.
type Client struct {
	store  store
	facets map[string]facet.Config
	logger *zap.Logger
}

// New creates a search client. facets maps index names onto facet display settings.
func New(s store, facets map[string]facet.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{store: s, facets: facets, logger: logger}
}

// FetchPage returns one page. An empty cursor is Start and a non-positive size is the default.
// Facets and matched fields are computed on the first page only.
func (c *Client) FetchPage(ctx context.Context, q query.Query, cursor string, size int) (res *result.QueryResult[db.Hit], err error) {
	q = q.Normalized()
	cursor = page.NormalizeCursor(cursor)
	size = page.NormalizeSize(size)
	first := cursor == page.Start

	backendCursor := cursor
	if first {
		backendCursor = ""
	}

	start := time.Now()
	defer func() {
		c.observe(ctx, opPage, q, start, err,
			zap.String("cursor", cursor),
			zap.Int("size", size),
		)
	}()

	pr, err := c.store.SearchPage(ctx, &db.PageRequest{
		Query:      q,
		Cursor:     backendCursor,
		Size:       size,
		WithFacets: first && len(q.Facets) > 0,
	})
	if err != nil {
		return nil, translate(err)
	}

	next := pr.NextCursor
	if next == backendCursor {
		next = cursor
	}
	info := page.New(cursor, next, pr.Total)
	res = result.New(pr.Hits, &info)

	if !first {
		return res, nil
	}
	if len(q.Facets) > 0 {
		res.WithFacets(facet.Translate(pr.Aggregations, c.facets[q.Index]))
	}
	if q.WantsMatchedFields() {
		terms, err := c.matchedFields(ctx, q)
		if err != nil {
			return nil, err
		}
		res.WithMatchedFields(terms)
	}
	return res, nil
}

// FetchSingle returns the first hit of q, reporting false when nothing matched.
func (c *Client) FetchSingle(ctx context.Context, q query.Query) (db.Hit, bool, error) {
	q.Facets = nil
	q.MatchedFields = nil

	res, err := c.FetchPage(ctx, q, page.Start, 1)
	if err != nil {
		return db.Hit{}, false, err
	}
	hits := res.Content()
	if len(hits) == 0 {
		return db.Hit{}, false, nil
	}
	return hits[0], true, nil
}

// FetchAll walks every match with the backend's own traversal. It is not bound by page size.
func (c *Client) FetchAll(ctx context.Context, q query.Query, batchSize int) db.HitIterator {
	q = q.Normalized()
	logger.FromContextOr(ctx, c.logger).Debug("backend scan",
		zap.String("index", q.Index),
		zap.String("expression", q.Expression),
		zap.Any("filters", q.Filters),
		zap.Int("batch_size", batchSize),
	)
	return &scanIterator{it: c.store.Scan(ctx, &db.ScanRequest{Query: q, BatchSize: batchSize})}
}

// Iterate returns a batch iterator over q, one page per batch.
func (c *Client) Iterate(q query.Query, size int) *BatchIterator {
	q.Facets = nil
	q.MatchedFields = nil
	return newBatchIterator(c, q, size)
}

func (c *Client) matchedFields(ctx context.Context, q query.Query) (terms []result.TermInfo, err error) {
	start := time.Now()
	defer func() {
		c.observe(ctx, opTerms, q, start, err, zap.String("term", q.Term))
	}()

	counts, err := c.store.CountMatches(ctx, &db.TermRequest{Query: q, Term: q.Term, Fields: q.MatchedFields})
	if err != nil {
		return nil, translate(err)
	}
	terms = make([]result.TermInfo, 0, len(q.MatchedFields))
	for _, f := range q.MatchedFields {
		terms = append(terms, result.TermInfo{Name: f, Hits: counts[f]})
	}
	return terms, nil
}

// observe records the request duration and logs the fully resolved query, including failed ones.
func (c *Client) observe(ctx context.Context, op string, q query.Query, start time.Time, err error, extra ...zap.Field) {
	elapsed := time.Since(start)
	outcome := outcomeOK
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		outcome = outcomeInvalidQuery
	case err != nil:
		outcome = outcomeFailure
	}
	metrics.BackendRequestDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())

	fields := append([]zap.Field{
		zap.String("op", op),
		zap.String("index", q.Index),
		zap.String("expression", q.Expression),
		zap.Any("filters", q.Filters),
		zap.String("sort", q.Sort.Field),
		zap.Bool("sort_desc", q.Sort.Desc),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	}, extra...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.FromContextOr(ctx, c.logger).Debug("backend query", fields...)
}

// translate maps backend errors onto the domain taxonomy.
func translate(err error) error {
	switch {
	case errors.Is(err, db.ErrInvalidCursor):
		return domain.NewInvalidQuery("malformed cursor")
	case errors.Is(err, db.ErrQuerySyntax):
		return domain.NewInvalidQuery("%s", syntaxDetail(err))
	default:
		return domain.NewRetrievalFailure(err)
	}
}

// syntaxDetail strips the operation prefix so only the parser's message reaches the client.
func syntaxDetail(err error) string {
	var dbErr *db.Error
	if errors.As(err, &dbErr) {
		return dbErr.Err.Error()
	}
	return err.Error()
}

// scanIterator translates backend errors of a full traversal.
type scanIterator struct {
	it db.HitIterator
}

func (s *scanIterator) Next(ctx context.Context) (db.Hit, error) {
	h, err := s.it.Next(ctx)
	if err != nil && !errors.Is(err, db.ErrIteratorDone) {
		return db.Hit{}, translate(err)
	}
	return h, err
}

func (s *scanIterator) Stop() { s.it.Stop() }
