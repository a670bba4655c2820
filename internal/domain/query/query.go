// Package query describes the logical query handed to a search backend.
package query

import (
	"regexp"
	"slices"
	"strings"
)

// MatchAll is the canonical match-everything expression.
const MatchAll = "*"

// Sort orders results by Field. TieBreaker names a unique field that orders equal Field values;
// backends without a secondary sort key track equal values in their cursor instead.
type Sort struct {
	Field      string
	Desc       bool
	TieBreaker string
}

// Filter is an exact-match constraint on one field.
type Filter struct {
	Field string
	Value string
}

// FacetSpec requests an aggregation over Field. Intervals ("lo,hi") turn it into a range facet.
type FacetSpec struct {
	Field     string
	Intervals []string
	Limit     int
}

// IsInterval reports whether the facet is computed over ranges.
func (f FacetSpec) IsInterval() bool { return len(f.Intervals) > 0 }

// Query is a backend-neutral search request. Expression uses the backend's own query syntax.
type Query struct {
	Index         string
	Expression    string
	Filters       []Filter
	Sort          Sort
	Facets        []FacetSpec
	Term          string   // free-text term for matched-field diagnostics
	MatchedFields []string // fields to count Term hits in; empty = not requested
	Fields        []string // fields to return; empty = all
}

// Normalized returns a copy with an empty expression replaced by MatchAll.
func (q Query) Normalized() Query {
	q.Expression = strings.TrimSpace(q.Expression)
	if q.Expression == "" {
		q.Expression = MatchAll
	}
	return q
}

// WantsMatchedFields reports whether term diagnostics were requested.
func (q Query) WantsMatchedFields() bool {
	return q.Term != "" && len(q.MatchedFields) > 0
}

// IsMatchAll reports whether expr is one of the literal match-everything forms.
func IsMatchAll(expr string) bool {
	e := strings.TrimSpace(expr)
	return e == "" || e == "*" || e == "*:*"
}

// Exact builds a single-field lookup query.
func Exact(index, field, value string, sort Sort) Query {
	return Query{
		Index:      index,
		Expression: MatchAll,
		Filters:    []Filter{{Field: field, Value: value}},
		Sort:       sort,
	}
}

// DefaultFilter is silently added to queries that do not constrain Field themselves,
// e.g. hiding isoforms or inactive entries unless the caller asks about them.
//
// The rule only looks at the literal expression text: match-all forms always get the
// filter, negated expressions never do, and expressions that mention Field or one of
// ExemptFields are left alone. Equivalent expressions written differently can be
// classified differently.
type DefaultFilter struct {
	Field        string
	Value        string
	ExemptFields []string
}

// Applies reports whether the filter would be injected into q.
func (d DefaultFilter) Applies(q Query) bool {
	if d.Field == "" {
		return false
	}
	for _, f := range q.Filters {
		if f.Field == d.Field || slices.Contains(d.ExemptFields, f.Field) {
			return false
		}
	}
	if IsMatchAll(q.Expression) {
		return true
	}
	if negatesTerm(q.Expression) {
		return false
	}
	if referencesField(q.Expression, d.Field) {
		return false
	}
	for _, f := range d.ExemptFields {
		if referencesField(q.Expression, f) {
			return false
		}
	}
	return true
}

// Apply returns q with the filter appended when Applies holds.
func (d DefaultFilter) Apply(q Query) Query {
	if !d.Applies(q) {
		return q
	}
	q.Filters = append(slices.Clone(q.Filters), Filter{Field: d.Field, Value: d.Value})
	return q
}

var negationRegex = regexp.MustCompile(`(^|[\s(])(-|!|NOT\s)`)

func negatesTerm(expr string) bool {
	return negationRegex.MatchString(expr)
}

func referencesField(expr, field string) bool {
	re := regexp.MustCompile(`(^|[\s(+\-!])@?` + regexp.QuoteMeta(field) + `:`)
	return re.MatchString(expr)
}
