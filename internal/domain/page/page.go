// Package page holds cursor pagination primitives.
package page

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Start is the reserved cursor meaning "from the beginning".
const Start = "start"

// DefaultSize is used when a caller asks for a non-positive page size.
const DefaultSize = 100

// Info is the pagination metadata of one page.
// NextCursor equal to Cursor is the only exhaustion signal; an empty page with a moved cursor is a normal page.
type Info struct {
	cursor     string
	nextCursor string
	total      int64
}

// New creates page metadata.
func New(cursor, nextCursor string, total int64) Info {
	return Info{cursor: cursor, nextCursor: nextCursor, total: total}
}

// Cursor returns the cursor the page was requested with.
func (i Info) Cursor() string { return i.cursor }

// NextCursor returns the cursor for the following page.
func (i Info) NextCursor() string { return i.nextCursor }

// TotalElements returns the number of matches across all pages.
func (i Info) TotalElements() int64 { return i.total }

// HasNext reports whether following NextCursor can yield more results.
func (i Info) HasNext() bool { return i.nextCursor != i.cursor }

// NormalizeCursor maps an absent cursor onto Start.
func NormalizeCursor(cursor string) string {
	if cursor == "" {
		return Start
	}
	return cursor
}

// NormalizeSize maps a non-positive size onto DefaultSize.
func NormalizeSize(size int) int {
	if size <= 0 {
		return DefaultSize
	}
	return size
}

// EncodeToken packs backend sort values into an opaque URL-safe cursor.
func EncodeToken(values []string) string {
	data, err := json.Marshal(values)
	if err != nil {
		// []string always marshals
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken unpacks a cursor produced by EncodeToken.
func DecodeToken(token string) ([]string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("malformed cursor: no sort values")
	}
	return values, nil
}

// EncodeOffset packs a list offset into a cursor for in-memory result sets.
func EncodeOffset(offset int) string {
	return EncodeToken([]string{strconv.Itoa(offset)})
}

// DecodeOffset reverses EncodeOffset. Start decodes to zero.
func DecodeOffset(cursor string) (int, error) {
	if cursor == Start || cursor == "" {
		return 0, nil
	}
	values, err := DecodeToken(cursor)
	if err != nil {
		return 0, err
	}
	offset, err := strconv.Atoi(values[0])
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("malformed cursor: bad offset %q", values[0])
	}
	return offset, nil
}
