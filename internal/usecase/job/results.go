package job

import (
	"context"
	"io"

	"github.com/kailas-cloud/searchstream/internal/domain"
	domjob "github.com/kailas-cloud/searchstream/internal/domain/job"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/result"
)

// Results is one page of a finished job's mapped pairs. Failed is set on the first page only.
type Results struct {
	Page   *result.QueryResult[domjob.Pair]
	Failed []string
}

// Results pages through the mapped pairs of a finished job with an offset cursor.
// The cursor stays put once the pairs are exhausted.
func (e *Engine) Results(ctx context.Context, id, cursor string, size int) (Results, error) {
	res, err := e.finished(ctx, id)
	if err != nil {
		return Results{}, err
	}

	cursor = page.NormalizeCursor(cursor)
	size = page.NormalizeSize(size)
	offset, err := page.DecodeOffset(cursor)
	if err != nil {
		return Results{}, domain.NewInvalidQuery("malformed cursor")
	}

	start := min(offset, len(res.Mapped))
	end := min(start+size, len(res.Mapped))
	next := cursor
	if end > start {
		next = page.EncodeOffset(end)
	}
	info := page.New(cursor, next, int64(len(res.Mapped)))

	out := Results{Page: result.New(res.Mapped[start:end], &info)}
	if cursor == page.Start {
		out.Failed = res.Failed
	}
	return out, nil
}

// StreamResults returns every mapped pair of a finished job as a sequence ending in io.EOF.
func (e *Engine) StreamResults(ctx context.Context, id string) (*Pairs, error) {
	res, err := e.finished(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Pairs{pairs: res.Mapped}, nil
}

func (e *Engine) finished(ctx context.Context, id string) (*domjob.Result, error) {
	j, err := e.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	switch j.Status {
	case domjob.StatusFinished:
		return j.Result, nil
	case domjob.StatusError:
		return nil, &domain.JobFailedError{Message: j.ErrorMessage}
	default:
		return nil, domain.ErrJobNotReady
	}
}

// Pairs yields mapped pairs in order.
type Pairs struct {
	pairs []domjob.Pair
}

// Next returns the next pair or io.EOF.
func (p *Pairs) Next(_ context.Context) (domjob.Pair, error) {
	if len(p.pairs) == 0 {
		return domjob.Pair{}, io.EOF
	}
	v := p.pairs[0]
	p.pairs = p.pairs[1:]
	return v, nil
}

// Close drops the remaining pairs.
func (p *Pairs) Close() error {
	p.pairs = nil
	return nil
}
