package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

// fakePages serves a fixed dataset in pages of req.Size using integer cursors.
type fakePages struct {
	docs  []string
	calls int
	err   error
}

func (f *fakePages) SearchPage(_ context.Context, req *PageRequest) (*PageResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if req.Cursor != "" {
		start, _ = strconv.Atoi(req.Cursor)
	}
	end := min(start+req.Size, len(f.docs))
	hits := make([]Hit, 0, end-start)
	for _, d := range f.docs[start:end] {
		hits = append(hits, Hit{ID: d})
	}
	next := NextCursorFor(req.Cursor, len(hits), func() string { return strconv.Itoa(end) })
	return &PageResult{Total: int64(len(f.docs)), Hits: hits, NextCursor: next}, nil
}

func TestPageScanner_VisitsEveryHitOnce(t *testing.T) {
	docs := make([]string, 7)
	for i := range docs {
		docs[i] = fmt.Sprintf("d%d", i)
	}
	f := &fakePages{docs: docs}

	hits, err := Drain(context.Background(), NewPageScanner(f, &ScanRequest{BatchSize: 3}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != len(docs) {
		t.Fatalf("expected %d hits, got %d", len(docs), len(hits))
	}
	for i, h := range hits {
		if h.ID != docs[i] {
			t.Errorf("hit %d = %q, want %q", i, h.ID, docs[i])
		}
	}
	// 3 + 3 + 1 + the empty page that confirms the cursor stopped moving
	if f.calls != 4 {
		t.Errorf("expected 4 backend calls, got %d", f.calls)
	}
}

func TestPageScanner_Error(t *testing.T) {
	boom := errors.New("boom")
	it := NewPageScanner(&fakePages{err: boom}, &ScanRequest{})
	if _, err := it.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := it.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("error must be sticky, got %v", err)
	}
}

func TestPageScanner_StopEndsTraversal(t *testing.T) {
	f := &fakePages{docs: []string{"a", "b", "c"}}
	it := NewPageScanner(f, &ScanRequest{BatchSize: 1})
	if _, err := it.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	it.Stop()
	if _, err := it.Next(context.Background()); !errors.Is(err, ErrIteratorDone) {
		t.Fatalf("expected ErrIteratorDone, got %v", err)
	}
	if f.calls != 1 {
		t.Errorf("expected no backend calls after Stop, got %d", f.calls)
	}
}

func TestNextCursorFor(t *testing.T) {
	if got := NextCursorFor("c1", 0, func() string { return "c2" }); got != "c1" {
		t.Errorf("empty page must keep cursor, got %q", got)
	}
	if got := NextCursorFor("c1", 2, func() string { return "c2" }); got != "c2" {
		t.Errorf("non-empty page must move cursor, got %q", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	err := &Error{Op: OpSearch, Err: fmt.Errorf("%w: near 'x'", ErrQuerySyntax)}
	if !errors.Is(err, ErrQuerySyntax) {
		t.Error("expected ErrQuerySyntax in chain")
	}
	if !IsInvalidRequest(err) || IsInvalidRequest(&Error{Op: OpSearch, Err: context.DeadlineExceeded}) {
		t.Error("IsInvalidRequest misclassified")
	}
	if err.Error() != "FT.SEARCH: db: query syntax error: near 'x'" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

type flakyPinger struct{ failures int }

func (p *flakyPinger) Ping(context.Context) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("not yet")
	}
	return nil
}

func TestWaitForReady(t *testing.T) {
	p := &flakyPinger{failures: 2}
	if err := WaitForReady(context.Background(), p, 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	p := &flakyPinger{failures: 1 << 30}
	if err := WaitForReady(context.Background(), p, 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
}
