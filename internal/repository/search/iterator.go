package search

import (
	"context"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

// State is the lifecycle of a BatchIterator.
type State int

const (
	// Fresh means no batch is loaded and more pages may follow.
	Fresh State = iota
	// Loaded means a non-empty batch waits to be taken.
	Loaded
	// Exhausted is terminal: no batch, no further backend calls.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Loaded:
		return "loaded"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// BatchIterator yields one non-empty page of hits per batch. Not safe for concurrent use.
type BatchIterator struct {
	client *Client
	query  query.Query
	size   int
	cursor string
	batch  []db.Hit
	last   bool
	state  State
}

func newBatchIterator(c *Client, q query.Query, size int) *BatchIterator {
	return &BatchIterator{
		client: c,
		query:  q,
		size:   page.NormalizeSize(size),
		cursor: page.Start,
		state:  Fresh,
	}
}

// State reports the current lifecycle state.
func (it *BatchIterator) State() State { return it.state }

// HasNext loads the next non-empty page if none is loaded. Empty pages with a moved cursor are skipped.
// A backend error exhausts the iterator.
func (it *BatchIterator) HasNext(ctx context.Context) (bool, error) {
	for {
		switch it.state {
		case Loaded:
			return true, nil
		case Exhausted:
			return false, nil
		}

		if it.last {
			it.transition(Exhausted)
			return false, nil
		}

		res, err := it.client.FetchPage(ctx, it.query, it.cursor, it.size)
		if err != nil {
			it.transition(Exhausted)
			return false, err
		}
		info, _ := res.TakePage()
		hits := res.Content()

		if !info.HasNext() {
			it.last = true
		}
		it.cursor = info.NextCursor()

		if len(hits) > 0 {
			it.batch = hits
			it.transition(Loaded)
		}
	}
}

// Next takes the loaded batch. It returns domain.ErrNoMoreElements when HasNext was not
// called or reported false.
func (it *BatchIterator) Next() ([]db.Hit, error) {
	if it.state != Loaded {
		return nil, domain.ErrNoMoreElements
	}
	b := it.batch
	if it.last {
		it.transition(Exhausted)
	} else {
		it.transition(Fresh)
	}
	return b, nil
}

// Close exhausts the iterator. Safe to call more than once.
func (it *BatchIterator) Close() {
	it.transition(Exhausted)
}

func (it *BatchIterator) transition(to State) {
	it.state = to
	switch to {
	case Fresh:
		it.batch = nil
	case Exhausted:
		it.client = nil
		it.batch = nil
		it.query = query.Query{}
	}
}
