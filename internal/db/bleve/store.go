// Package bleve provides an embedded search backend on top of a bleve index per dataset.
package bleve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kailas-cloud/searchstream/internal/db"
)

// IndexSpec describes how one dataset is mapped.
type IndexSpec struct {
	SortField  string
	TextFields []string
}

// Config holds the embedded backend settings.
type Config struct {
	Path    string // empty = in-memory indexes
	Indexes map[string]IndexSpec
}

// Store serves searches from local bleve indexes.
type Store struct {
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	closed  bool
}

var _ db.Store = (*Store)(nil)

// New opens or creates one bleve index per configured dataset.
// Existing index directories are reused as-is; remove them after changing the mapping.
func New(cfg Config) (*Store, error) {
	s := &Store{indexes: make(map[string]bleve.Index, len(cfg.Indexes))}
	for name, spec := range cfg.Indexes {
		idx, err := openIndex(cfg.Path, name, spec)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.indexes[name] = idx
	}
	return s, nil
}

func openIndex(root, name string, spec IndexSpec) (bleve.Index, error) {
	im := buildMapping(spec)
	if root == "" {
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("create in-memory index %s: %w", name, err)
		}
		return idx, nil
	}

	path := filepath.Join(root, name)
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", name, err)
		}
		return idx, nil
	}
	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", name, err)
	}
	return idx, nil
}

// buildMapping indexes strings verbatim by default so filters behave as exact matches.
// Text fields get the standard analyzer; the sort field is numeric.
func buildMapping(spec IndexSpec) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	for _, f := range spec.TextFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		docMapping.AddFieldMappingsAt(f, fm)
	}
	if spec.SortField != "" {
		docMapping.AddFieldMappingsAt(spec.SortField, bleve.NewNumericFieldMapping())
	}
	im.DefaultMapping = docMapping
	return im
}

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &db.Error{Op: db.OpPing, Err: fmt.Errorf("store closed")}
	}
	return nil
}

// WaitForReady pings until the store answers or the timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return db.WaitForReady(ctx, s, timeout)
}

// Close closes every index.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, idx := range s.indexes {
		_ = idx.Close()
	}
}

// Index adds or replaces one document.
func (s *Store) Index(_ context.Context, index, id string, doc map[string]any) error {
	idx, err := s.index(index)
	if err != nil {
		return err
	}
	if err := idx.Index(id, doc); err != nil {
		return &db.Error{Op: db.OpBleveIndex, Err: err}
	}
	return nil
}

// IndexBatch adds or replaces documents keyed by id in one batch.
func (s *Store) IndexBatch(_ context.Context, index string, docs map[string]map[string]any) error {
	idx, err := s.index(index)
	if err != nil {
		return err
	}
	b := idx.NewBatch()
	for id, doc := range docs {
		if err := b.Index(id, doc); err != nil {
			return &db.Error{Op: db.OpBleveIndex, Err: err}
		}
	}
	if err := idx.Batch(b); err != nil {
		return &db.Error{Op: db.OpBleveIndex, Err: err}
	}
	return nil
}

func (s *Store) index(name string) (bleve.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok || s.closed {
		return nil, &db.Error{Op: db.OpBleveSearch, Err: fmt.Errorf("%w: %s", db.ErrIndexNotFound, name)}
	}
	return idx, nil
}
