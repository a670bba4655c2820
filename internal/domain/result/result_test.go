package result

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
)

func TestTakePage_OneShot(t *testing.T) {
	info := page.New(page.Start, "next", 42)
	r := New([]string{"a", "b"}, &info)

	got, ok := r.TakePage()
	if !ok {
		t.Fatal("first TakePage must return the page")
	}
	if got.NextCursor() != "next" || got.TotalElements() != 42 {
		t.Errorf("unexpected page: %+v", got)
	}

	for i := 0; i < 3; i++ {
		if _, ok := r.TakePage(); ok {
			t.Fatalf("TakePage call %d returned a page again", i+2)
		}
	}
}

func TestTakePage_NilPage(t *testing.T) {
	r := New([]int{1}, nil)
	if _, ok := r.TakePage(); ok {
		t.Fatal("expected no page")
	}
}

func TestTakePage_ConcurrentTakersGetOneHit(t *testing.T) {
	info := page.New(page.Start, "n", 1)
	r := New([]int{1}, &info)

	var hits atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.TakePage(); ok {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()

	if hits.Load() != 1 {
		t.Errorf("expected exactly one taker, got %d", hits.Load())
	}
}

func TestMap_CarriesMetadata(t *testing.T) {
	info := page.New(page.Start, "n", 2)
	facets := []facet.Facet{{Name: "reviewed"}}
	terms := []TermInfo{{Name: "gene", Hits: 3}}
	r := New([]int{1, 2}, &info).WithFacets(facets).WithMatchedFields(terms)

	m := Map(r, func(i int) string { return string(rune('a' + i)) })
	if len(m.Content()) != 2 || m.Content()[0] != "b" {
		t.Errorf("unexpected content: %v", m.Content())
	}
	if len(m.Facets()) != 1 || len(m.MatchedFields()) != 1 {
		t.Error("facets and matched fields must carry over")
	}
	if _, ok := m.TakePage(); !ok {
		t.Error("untaken page must move to the mapped result")
	}
	if _, ok := r.TakePage(); ok {
		t.Error("source result must no longer hold the page")
	}
}
