package stream

import (
	"context"
	"errors"
	"io"
)

// SliceSequence yields the items of a slice.
type SliceSequence[T any] struct {
	items []T
	pos   int
}

// FromSlice creates a sequence over items.
func FromSlice[T any](items []T) *SliceSequence[T] {
	return &SliceSequence[T]{items: items}
}

// Next returns the next item or io.EOF.
func (s *SliceSequence[T]) Next(_ context.Context) (T, error) {
	var zero T
	if s.pos >= len(s.items) {
		return zero, io.EOF
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}

// Close drops the backing slice.
func (s *SliceSequence[T]) Close() error {
	s.items = nil
	return nil
}

// Prime pulls the first item of seq so a failing backend is reported before anything is
// written. On error seq is closed and the error returned as is; otherwise the returned
// sequence replays the first item and continues with seq.
func Prime[T any](ctx context.Context, seq Sequence[T]) (Sequence[T], error) {
	first, err := seq.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = seq.Close()
		return nil, err
	}
	return &primed[T]{Sequence: seq, first: first, err: err}, nil
}

type primed[T any] struct {
	Sequence[T]
	first    T
	err      error
	consumed bool
}

func (p *primed[T]) Next(ctx context.Context) (T, error) {
	if !p.consumed {
		p.consumed = true
		return p.first, p.err
	}
	if p.err != nil {
		var zero T
		return zero, p.err
	}
	return p.Sequence.Next(ctx)
}
