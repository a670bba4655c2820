package db

import (
	"context"
	"errors"
)

// pageSearcher is the part of Searcher a PageScanner needs.
type pageSearcher interface {
	SearchPage(ctx context.Context, req *PageRequest) (*PageResult, error)
}

// PageScanner walks all hits by following SearchPage cursors.
type PageScanner struct {
	s       pageSearcher
	req     PageRequest
	buf     []Hit
	done    bool
	err     error
	stopped bool
}

// NewPageScanner creates a scanner over every match of req.Query.
func NewPageScanner(s pageSearcher, req *ScanRequest) *PageScanner {
	size := req.BatchSize
	if size <= 0 {
		size = 1000
	}
	return &PageScanner{s: s, req: PageRequest{Query: req.Query, Size: size}}
}

// Next returns the next hit or ErrIteratorDone.
func (p *PageScanner) Next(ctx context.Context) (Hit, error) {
	for len(p.buf) == 0 {
		if p.err != nil {
			return Hit{}, p.err
		}
		if p.done || p.stopped {
			return Hit{}, ErrIteratorDone
		}
		res, err := p.s.SearchPage(ctx, &p.req)
		if err != nil {
			p.err = err
			return Hit{}, err
		}
		if res.NextCursor == p.req.Cursor {
			p.done = true
		}
		p.req.Cursor = res.NextCursor
		p.buf = res.Hits
	}
	h := p.buf[0]
	p.buf = p.buf[1:]
	return h, nil
}

// Stop releases buffered hits; Next reports ErrIteratorDone afterwards.
func (p *PageScanner) Stop() {
	p.stopped = true
	p.buf = nil
}

// Drain collects every remaining hit. Intended for small result sets and tests.
func Drain(ctx context.Context, it HitIterator) ([]Hit, error) {
	defer it.Stop()
	var out []Hit
	for {
		h, err := it.Next(ctx)
		if errors.Is(err, ErrIteratorDone) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
}
