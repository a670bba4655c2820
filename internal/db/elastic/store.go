// Package elastic provides a search backend on top of Elasticsearch.
package elastic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/searchstream/internal/db"
)

// Config holds connection settings.
type Config struct {
	Addrs    []string
	Username string
	Password string
}

// Store runs searches against an Elasticsearch cluster.
type Store struct {
	client *elasticsearch.Client
}

var _ db.Store = (*Store)(nil)

// New creates an Elasticsearch-backed store.
func New(cfg Config) (*Store, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addrs,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Store{client: es}, nil
}

// Ping checks cluster connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return &db.Error{Op: db.OpESPing, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return &db.Error{Op: db.OpESPing, Err: fmt.Errorf("status %s", res.Status())}
	}
	return nil
}

// WaitForReady pings until the cluster responds or the timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return db.WaitForReady(ctx, s, timeout)
}

// Close is a no-op; the HTTP transport holds no long-lived resources.
func (s *Store) Close() {}

// readResponse returns the body of a successful response or a classified error.
func readResponse(res *esapi.Response) ([]byte, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &db.Error{Op: db.OpESSearch, Err: err}
	}
	if !res.IsError() {
		return body, nil
	}

	doc := gjson.ParseBytes(body)
	errType := doc.Get("error.type").String()
	reason := doc.Get("error.root_cause.0.reason").String()
	if reason == "" {
		reason = doc.Get("error.reason").String()
	}

	switch {
	case res.StatusCode == http.StatusNotFound && errType == "index_not_found_exception":
		return nil, &db.Error{Op: db.OpESSearch, Err: fmt.Errorf("%w: %s", db.ErrIndexNotFound, reason)}
	case res.StatusCode == http.StatusBadRequest:
		return nil, &db.Error{Op: db.OpESSearch, Err: fmt.Errorf("%w: %s", db.ErrQuerySyntax, reason)}
	default:
		return nil, &db.Error{Op: db.OpESSearch, Err: fmt.Errorf("status %s: %s %s", res.Status(), errType, reason)}
	}
}
