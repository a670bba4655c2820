package entity

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain"
	domentity "github.com/kailas-cloud/searchstream/internal/domain/entity"
)

// Layout describes where the entities of one index live.
type Layout struct {
	Prefix  string // hash key prefix; the entity id is appended
	IDField string // hit field holding the entity id; empty = hit id
}

// store is the consumer interface for entity hashes (ISP).
type store interface {
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// HashRepo resolves hits into entities stored as hashes next to the search index.
type HashRepo struct {
	store   store
	layouts map[string]Layout
}

// NewHashRepo creates a hash-backed entity repository.
func NewHashRepo(s store, layouts map[string]Layout) *HashRepo {
	return &HashRepo{store: s, layouts: layouts}
}

// Resolve loads the entity behind every hit in one pipelined round trip.
// Hits whose hash has expired or was never written are dropped.
func (r *HashRepo) Resolve(ctx context.Context, index string, hits []db.Hit) ([]domentity.Entity, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	layout := r.layouts[index]

	ids := make([]string, len(hits))
	keys := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = entityID(h, layout.IDField)
		keys[i] = layout.Prefix + ids[i]
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, domain.NewRetrievalFailure(fmt.Errorf("hgetall %d entities of %s: %w", len(keys), index, err))
	}

	out := make([]domentity.Entity, 0, len(rows))
	for i, fields := range rows {
		if len(fields) == 0 {
			continue
		}
		out = append(out, domentity.Entity{ID: ids[i], Fields: fields})
	}
	return out, nil
}

// InlineRepo builds entities from the fields returned with each hit.
type InlineRepo struct {
	layouts map[string]Layout
}

// NewInlineRepo creates an entity repository that needs no second lookup.
func NewInlineRepo(layouts map[string]Layout) *InlineRepo {
	return &InlineRepo{layouts: layouts}
}

// Resolve converts hits in order.
func (r *InlineRepo) Resolve(_ context.Context, index string, hits []db.Hit) ([]domentity.Entity, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	idField := r.layouts[index].IDField
	out := make([]domentity.Entity, len(hits))
	for i, h := range hits {
		out[i] = domentity.Entity{ID: entityID(h, idField), Fields: h.Fields}
	}
	return out, nil
}

func entityID(h db.Hit, idField string) string {
	if idField != "" {
		if id := h.Fields[idField]; id != "" {
			return id
		}
	}
	return h.ID
}
