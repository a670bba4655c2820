package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// fakeChannel records everything written to it.
type fakeChannel struct {
	buf      bytes.Buffer
	flushes  int
	closed   bool
	failAt   int // fail the n-th write (1-based); 0 = never
	writes   int
	writeErr error
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.writes++
	if c.failAt > 0 && c.writes >= c.failAt {
		if c.writeErr == nil {
			c.writeErr = errors.New("broken pipe")
		}
		return 0, c.writeErr
	}
	return c.buf.Write(p)
}

func (c *fakeChannel) Flush() error {
	c.flushes++
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

// failingSequence yields items and then fails with err instead of io.EOF.
type failingSequence struct {
	items  []string
	err    error
	pos    int
	closed bool
}

func (s *failingSequence) Next(context.Context) (string, error) {
	if s.pos < len(s.items) {
		s.pos++
		return s.items[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *failingSequence) Close() error {
	s.closed = true
	return nil
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "P" + string(rune('A'+i%26))
	}
	return out
}

func listFormat() Format[string] {
	return Columns[string]{ID: func(s string) string { return s }}.Format(List)
}
