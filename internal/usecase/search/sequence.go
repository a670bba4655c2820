package search

import (
	"context"
	"errors"
	"io"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain/entity"
	reposearch "github.com/kailas-cloud/searchstream/internal/repository/search"
)

// Entities flattens iterator batches into a sequence of resolved entities. It ends with io.EOF.
type Entities struct {
	index    string
	it       *reposearch.BatchIterator
	resolver Resolver
	buf      []entity.Entity
}

// Next returns the next entity, loading and resolving the next batch when the current one is used up.
func (e *Entities) Next(ctx context.Context) (entity.Entity, error) {
	for len(e.buf) == 0 {
		ok, err := e.it.HasNext(ctx)
		if err != nil {
			return entity.Entity{}, err
		}
		if !ok {
			return entity.Entity{}, io.EOF
		}
		hits, err := e.it.Next()
		if err != nil {
			return entity.Entity{}, err
		}
		e.buf, err = e.resolver.Resolve(ctx, e.index, hits)
		if err != nil {
			e.it.Close()
			return entity.Entity{}, err
		}
	}
	v := e.buf[0]
	e.buf = e.buf[1:]
	return v, nil
}

// Close stops the underlying iterator.
func (e *Entities) Close() error {
	e.it.Close()
	e.buf = nil
	return nil
}

// Hits adapts a backend traversal into a sequence of inline entities.
type Hits struct {
	it      db.HitIterator
	idField string
}

// Next returns the next entity or io.EOF.
func (h *Hits) Next(ctx context.Context) (entity.Entity, error) {
	hit, err := h.it.Next(ctx)
	if errors.Is(err, db.ErrIteratorDone) {
		return entity.Entity{}, io.EOF
	}
	if err != nil {
		return entity.Entity{}, err
	}
	id := hit.ID
	if v := hit.Fields[h.idField]; h.idField != "" && v != "" {
		id = v
	}
	return entity.Entity{ID: id, Fields: hit.Fields}, nil
}

// Close stops the traversal.
func (h *Hits) Close() error {
	h.it.Stop()
	return nil
}
