// Package result holds the page bundle returned by paginated queries.
package result

import (
	"sync"

	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
)

// TermInfo is the number of hits a free-text term scored in one field.
type TermInfo struct {
	Name string `json:"name"`
	Hits int64  `json:"hits"`
}

// QueryResult is one page of results. Page metadata can be taken once;
// facets and matched fields are only present on the first page of a search.
type QueryResult[T any] struct {
	content       []T
	facets        []facet.Facet
	matchedFields []TermInfo

	mu   sync.Mutex
	page *page.Info
}

// New creates a result bundle. info may be nil for unpaged results.
func New[T any](content []T, info *page.Info) *QueryResult[T] {
	return &QueryResult[T]{content: content, page: info}
}

// WithFacets attaches facets.
func (r *QueryResult[T]) WithFacets(facets []facet.Facet) *QueryResult[T] {
	r.facets = facets
	return r
}

// WithMatchedFields attaches matched-field statistics.
func (r *QueryResult[T]) WithMatchedFields(terms []TermInfo) *QueryResult[T] {
	r.matchedFields = terms
	return r
}

// Content returns the page items in backend order.
func (r *QueryResult[T]) Content() []T { return r.content }

// Facets returns the facets, nil when not computed for this page.
func (r *QueryResult[T]) Facets() []facet.Facet { return r.facets }

// MatchedFields returns term statistics, nil when not requested or not the first page.
func (r *QueryResult[T]) MatchedFields() []TermInfo { return r.matchedFields }

// TakePage returns the page metadata and clears it; every later call reports false.
func (r *QueryResult[T]) TakePage() (page.Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page == nil {
		return page.Info{}, false
	}
	info := *r.page
	r.page = nil
	return info, true
}

// Map converts content items while carrying page, facets and matched fields over.
// Untaken page metadata moves to the new bundle.
func Map[T, U any](r *QueryResult[T], fn func(T) U) *QueryResult[U] {
	out := make([]U, len(r.content))
	for i, item := range r.content {
		out[i] = fn(item)
	}
	var info *page.Info
	if p, ok := r.TakePage(); ok {
		info = &p
	}
	return New(out, info).WithFacets(r.facets).WithMatchedFields(r.matchedFields)
}
