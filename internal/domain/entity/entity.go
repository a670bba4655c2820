// Package entity holds the output records produced by searches.
package entity

import "encoding/json"

// IDKey is the key the identifier is rendered under.
const IDKey = "id"

// Entity is a full record resolved from the entity store.
type Entity struct {
	ID     string
	Fields map[string]string
}

// Get returns the value of field, empty when absent.
func (e Entity) Get(field string) string {
	if field == IDKey {
		return e.ID
	}
	return e.Fields[field]
}

// MarshalJSON renders the entity as one flat object. A stored "id" field never shadows ID.
func (e Entity) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat[IDKey] = e.ID
	return json.Marshal(flat)
}

// Row returns the values of columns in order, empty for absent fields.
func (e Entity) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = e.Get(c)
	}
	return row
}
