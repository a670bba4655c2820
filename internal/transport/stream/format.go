package stream

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/kailas-cloud/searchstream/internal/domain"
)

// Kind names an output format.
type Kind string

// Supported output formats.
const (
	JSON Kind = "json"
	TSV  Kind = "tsv"
	List Kind = "list"
)

// ParseKind resolves a format name; empty means JSON.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return JSON, nil
	case JSON, TSV, List:
		return k, nil
	default:
		return "", domain.NewInvalidQuery("unsupported format %q", s)
	}
}

// Format bundles everything Write needs to render T in one output format.
type Format[T any] struct {
	Kind        Kind
	ContentType string
	Separator   string
	Before      func(io.Writer) error
	After       func(io.Writer) error
	Encode      Encoder[T]
}

// Options fills the format-specific fields of base.
func (f Format[T]) Options(base Options) Options {
	base.Separator = f.Separator
	base.Before = f.Before
	base.After = f.After
	base.Format = string(f.Kind)
	return base
}

// Columns describes how T maps onto tabular and list output.
type Columns[T any] struct {
	Header []string
	Row    func(T) []string
	ID     func(T) string
}

// Format builds the format of kind k for T.
func (c Columns[T]) Format(k Kind) Format[T] {
	switch k {
	case TSV:
		return Format[T]{
			Kind:        TSV,
			ContentType: "text/tab-separated-values; charset=utf-8",
			Before:      func(w io.Writer) error { return writeTSV(w, c.Header) },
			Encode:      func(w io.Writer, v T) error { return writeTSV(w, c.Row(v)) },
		}
	case List:
		return Format[T]{
			Kind:        List,
			ContentType: "text/plain; charset=utf-8",
			Encode: func(w io.Writer, v T) error {
				_, err := io.WriteString(w, c.ID(v)+"\n")
				return err
			},
		}
	default:
		return Format[T]{
			Kind:        JSON,
			ContentType: "application/json",
			Separator:   ",",
			Before:      func(w io.Writer) error { return writeString(w, "[") },
			After:       func(w io.Writer) error { return writeString(w, "]") },
			Encode:      encodeJSON[T],
		}
	}
}

func encodeJSON[T any](w io.Writer, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeTSV(w io.Writer, row []string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeString(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}
