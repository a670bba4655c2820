package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/searchstream/internal/config"
	"github.com/kailas-cloud/searchstream/internal/db"
	"github.com/kailas-cloud/searchstream/internal/db/bleve"
	"github.com/kailas-cloud/searchstream/internal/db/elastic"
	dbRedis "github.com/kailas-cloud/searchstream/internal/db/redis"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
	entityrepo "github.com/kailas-cloud/searchstream/internal/repository/entity"
	jobrepo "github.com/kailas-cloud/searchstream/internal/repository/job"
	jobuc "github.com/kailas-cloud/searchstream/internal/usecase/job"
	"github.com/kailas-cloud/searchstream/internal/usecase/mapping"
	searchuc "github.com/kailas-cloud/searchstream/internal/usecase/search"
)

// backend is the opened search store. redis is set only for the redis driver,
// which also serves entity hashes and the shared job cache.
type backend struct {
	store db.Store
	redis *dbRedis.Store
}

func openBackend(cfg config.Config) (backend, error) {
	switch cfg.Search.Driver {
	case config.DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Search.Addrs,
			Username: cfg.Search.Username,
			Password: cfg.Search.Password,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{store: s, redis: s}, nil
	case config.DriverElasticsearch:
		s, err := elastic.New(elastic.Config{
			Addrs:    cfg.Search.Addrs,
			Username: cfg.Search.Username,
			Password: cfg.Search.Password,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{store: s}, nil
	case config.DriverBleve:
		specs := make(map[string]bleve.IndexSpec, len(cfg.Indexes))
		for name, idx := range cfg.Indexes {
			specs[name] = bleve.IndexSpec{SortField: idx.SortField, TextFields: idx.TextFields}
		}
		s, err := bleve.New(bleve.Config{Path: cfg.Search.BlevePath, Indexes: specs})
		if err != nil {
			return backend{}, err
		}
		return backend{store: s}, nil
	default:
		return backend{}, fmt.Errorf("unknown search driver %q", cfg.Search.Driver)
	}
}

// entityResolver reads entity hashes on redis when an index names a key prefix.
// Every other setup builds entities from the returned hit fields.
func (b backend) entityResolver(indexes map[string]config.IndexConfig) searchuc.Resolver {
	layouts := make(map[string]entityrepo.Layout, len(indexes))
	hashes := false
	for name, idx := range indexes {
		layouts[name] = entityrepo.Layout{Prefix: idx.EntityPrefix, IDField: idx.IDField}
		hashes = hashes || idx.EntityPrefix != ""
	}
	if b.redis != nil && hashes {
		return entityrepo.NewHashRepo(b.redis, layouts)
	}
	return entityrepo.NewInlineRepo(layouts)
}

// jobCache is a job store the health check can ping.
type jobCache interface {
	jobuc.Store
	Ping(ctx context.Context) error
	Close()
}

func openJobStore(cfg config.Config, b backend) (jobCache, error) {
	ttl := time.Duration(cfg.Jobs.TTLSec) * time.Second
	if cfg.Jobs.Cache == config.JobCacheRedis {
		if b.redis == nil {
			return nil, fmt.Errorf("jobs.cache %q needs the redis search driver", config.JobCacheRedis)
		}
		return jobrepo.NewRedisStore(b.redis, b.redis, ttl), nil
	}
	ms, err := jobrepo.NewMemoryStore(int64(cfg.Jobs.CacheSize), ttl)
	if err != nil {
		return nil, err
	}
	return ms, nil
}

func buildIndexes(cfgs map[string]config.IndexConfig) (map[string]searchuc.Index, map[string]facet.Config) {
	indexes := make(map[string]searchuc.Index, len(cfgs))
	facets := make(map[string]facet.Config, len(cfgs))
	for name, c := range cfgs {
		idx := searchuc.Index{
			Sort:       indexSort(c),
			IDField:    c.IDField,
			Fields:     c.Fields,
			TextFields: c.TextFields,
		}
		display := make(facet.Config, len(c.Facets))
		for _, f := range c.Facets {
			idx.Facets = append(idx.Facets, query.FacetSpec{Field: f.Field, Intervals: f.Intervals, Limit: f.Limit})
			display[f.Field] = facet.FieldConfig{Label: f.Label, AllowMultiple: f.AllowMultiple, ValueLabels: f.Values}
		}
		if df := c.DefaultFilter; df != nil {
			idx.DefaultFilter = query.DefaultFilter{Field: df.Field, Value: df.Value, ExemptFields: df.ExemptFields}
		}
		indexes[name] = idx
		facets[name] = display
	}
	return indexes, facets
}

func indexSort(c config.IndexConfig) query.Sort {
	return query.Sort{Field: c.SortField, Desc: c.SortDesc, TieBreaker: c.TieBreaker}
}

func buildRules(cfg config.Config) []mapping.Rule {
	rules := make([]mapping.Rule, 0, len(cfg.Jobs.Mappings))
	for _, m := range cfg.Jobs.Mappings {
		idx := cfg.Indexes[m.Index]
		rules = append(rules, mapping.Rule{
			From:      m.From,
			To:        m.To,
			Index:     m.Index,
			FromField: m.FromField,
			ToField:   m.ToField,
			Sort:      indexSort(idx),
		})
	}
	return rules
}
