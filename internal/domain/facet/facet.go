// Package facet normalizes backend aggregations into labeled facets.
package facet

import "strings"

// Item is one selectable facet value with its match count.
type Item struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
	Count int64  `json:"count"`
}

// Facet is a labeled aggregation over one field.
type Facet struct {
	Name                   string `json:"name"`
	Label                  string `json:"label"`
	AllowMultipleSelection bool   `json:"allowMultipleSelection"`
	Values                 []Item `json:"values"`
}

// Bucket is a raw backend aggregation bucket.
type Bucket struct {
	Key   string
	Count int64
}

// Field holds the raw buckets a backend returned for one field.
type Field struct {
	Name    string
	Buckets []Bucket
}

// Aggregations is the raw aggregation response of one page query.
// Values holds value-bucket facets; Intervals holds range facets keyed "lo,hi".
type Aggregations struct {
	Values    []Field
	Intervals []Field
}

// IsEmpty reports whether no facet field came back.
func (a Aggregations) IsEmpty() bool {
	return len(a.Values) == 0 && len(a.Intervals) == 0
}

// FieldConfig holds display settings for one facet field.
type FieldConfig struct {
	Label         string
	AllowMultiple bool
	ValueLabels   map[string]string
}

// Config maps field names onto display settings. Read-only after load.
type Config map[string]FieldConfig

// Translate converts raw aggregations into facets: value facets first, then interval facets,
// each in the order the backend returned them. Fields without configuration are labeled by name.
func Translate(aggs Aggregations, cfg Config) []Facet {
	out := make([]Facet, 0, len(aggs.Values)+len(aggs.Intervals))
	for _, f := range aggs.Values {
		out = append(out, convert(f, cfg, false))
	}
	for _, f := range aggs.Intervals {
		out = append(out, convert(f, cfg, true))
	}
	return out
}

func convert(f Field, cfg Config, interval bool) Facet {
	fc, ok := cfg[f.Name]
	label := f.Name
	if ok && fc.Label != "" {
		label = fc.Label
	}

	items := make([]Item, 0, len(f.Buckets))
	for _, b := range f.Buckets {
		value := b.Key
		if interval {
			value = IntervalValue(b.Key)
		}
		items = append(items, Item{
			Value: value,
			Label: valueLabel(fc.ValueLabels, b.Key, value),
			Count: b.Count,
		})
	}

	return Facet{
		Name:                   f.Name,
		Label:                  label,
		AllowMultipleSelection: ok && fc.AllowMultiple,
		Values:                 items,
	}
}

// valueLabel looks the raw key up first, then the canonical value, and falls back to the value itself.
func valueLabel(labels map[string]string, key, value string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	if l, ok := labels[value]; ok {
		return l
	}
	return value
}

// IntervalValue rewrites a backend interval key "lo,hi" into the query fragment "lo TO hi".
// Keys without a comma pass through untouched.
func IntervalValue(key string) string {
	lo, hi, ok := strings.Cut(key, ",")
	if !ok {
		return key
	}
	return strings.TrimSpace(lo) + " TO " + strings.TrimSpace(hi)
}

// IntervalKey builds the backend interval key for bounds lo and hi.
func IntervalKey(lo, hi string) string {
	return lo + "," + hi
}
