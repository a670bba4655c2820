package mapping

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/domain/job"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
)

// --- Mocks ---

type mockSearcher struct {
	hits    map[string]db.Hit // keyed by filter value
	err     error
	queries []query.Query
}

func (m *mockSearcher) FetchSingle(_ context.Context, q query.Query) (db.Hit, bool, error) {
	m.queries = append(m.queries, q)
	if m.err != nil {
		return db.Hit{}, false, m.err
	}
	h, ok := m.hits[q.Filters[0].Value]
	return h, ok, nil
}

func geneRule() Rule {
	return Rule{From: "Gene_Name", To: "UniProtKB", Index: "proteins", FromField: "gene", ToField: "accession"}
}

func TestMap_PartitionsMappedAndFailed(t *testing.T) {
	ms := &mockSearcher{hits: map[string]db.Hit{
		"BRCA1": {ID: "1", Fields: map[string]string{"accession": "P38398"}},
		"TP53":  {ID: "2", Fields: map[string]string{"accession": "P04637"}},
		"EMPTY": {ID: "3", Fields: map[string]string{}},
	}}
	svc := New(ms, []Rule{geneRule()})

	res, err := svc.Map(context.Background(), job.Request{
		From: "Gene_Name", To: "UniProtKB",
		IDs: []string{"BRCA1", "NOPE", "TP53", "BRCA1", "", "EMPTY"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fmt.Sprint(res.Mapped); got != "[{BRCA1 P38398} {TP53 P04637}]" {
		t.Errorf("mapped = %s", got)
	}
	if got := fmt.Sprint(res.Failed); got != "[NOPE EMPTY]" {
		t.Errorf("failed = %s", got)
	}
	if len(ms.queries) != 4 {
		t.Errorf("expected one lookup per distinct id, got %d", len(ms.queries))
	}

	q := ms.queries[0]
	if q.Index != "proteins" || q.Filters[0].Field != "gene" || fmt.Sprint(q.Fields) != "[accession]" {
		t.Errorf("unexpected query: %+v", q)
	}
}

func TestMap_Disjoint(t *testing.T) {
	ms := &mockSearcher{hits: map[string]db.Hit{"A": {ID: "x", Fields: map[string]string{"accession": "Q1"}}}}
	svc := New(ms, []Rule{geneRule()})

	res, err := svc.Map(context.Background(), job.Request{From: "Gene_Name", To: "UniProtKB", IDs: []string{"A", "B", "A", "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[string]bool{}
	for _, p := range res.Mapped {
		seen[p.From] = true
	}
	for _, id := range res.Failed {
		if seen[id] {
			t.Errorf("%s is both mapped and failed", id)
		}
	}
	if len(res.Mapped)+len(res.Failed) != 2 {
		t.Errorf("expected 2 distinct ids, got %+v", res)
	}
}

func TestMap_IDField(t *testing.T) {
	ms := &mockSearcher{hits: map[string]db.Hit{"BRCA1": {ID: "P38398"}}}
	rule := geneRule()
	rule.ToField = "id"
	svc := New(ms, []Rule{rule})

	res, err := svc.Map(context.Background(), job.Request{From: "Gene_Name", To: "UniProtKB", IDs: []string{"BRCA1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Mapped) != 1 || res.Mapped[0].To != "P38398" {
		t.Errorf("mapped = %+v", res.Mapped)
	}
}

func TestMap_UnknownRule(t *testing.T) {
	svc := New(&mockSearcher{}, []Rule{geneRule()})

	_, err := svc.Map(context.Background(), job.Request{From: "UniProtKB", To: "Gene_Name", IDs: []string{"P1"}})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if svc.Supports("UniProtKB", "Gene_Name") || !svc.Supports("Gene_Name", "UniProtKB") {
		t.Error("Supports disagrees with the configured rules")
	}
}

func TestMap_RetrievalFailureAborts(t *testing.T) {
	ms := &mockSearcher{err: domain.NewRetrievalFailure(errors.New("timeout"))}
	svc := New(ms, []Rule{geneRule()})

	_, err := svc.Map(context.Background(), job.Request{From: "Gene_Name", To: "UniProtKB", IDs: []string{"A", "B"}})
	if !errors.Is(err, domain.ErrRetrievalFailure) {
		t.Fatalf("expected ErrRetrievalFailure, got %v", err)
	}
	if len(ms.queries) != 1 {
		t.Errorf("mapping must stop at the first failure, got %d lookups", len(ms.queries))
	}
}

func TestMap_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ms := &mockSearcher{}
	svc := New(ms, []Rule{geneRule()})

	_, err := svc.Map(ctx, job.Request{From: "Gene_Name", To: "UniProtKB", IDs: []string{"A"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(ms.queries) != 0 {
		t.Error("no lookup after cancellation")
	}
}
