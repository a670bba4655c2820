package main

import (
	"testing"

	"github.com/kailas-cloud/searchstream/internal/config"
)

func TestBuildIndexes(t *testing.T) {
	indexes, facets := buildIndexes(map[string]config.IndexConfig{
		"proteins": {
			SortField:  "seq",
			SortDesc:   true,
			IDField:    "accession",
			TieBreaker: "accession",
			Fields:     []string{"gene"},
			Facets: []config.FacetConfig{
				{Field: "reviewed", Label: "Status", Values: map[string]string{"true": "Reviewed"}},
				{Field: "length", Intervals: []string{"1,200", "201,*"}},
			},
			DefaultFilter: &config.DefaultFilterConfig{Field: "is_isoform", Value: "false"},
		},
	})

	idx := indexes["proteins"]
	if idx.Sort.Field != "seq" || !idx.Sort.Desc || idx.Sort.TieBreaker != "accession" || idx.IDField != "accession" {
		t.Errorf("unexpected index: %+v", idx)
	}
	if len(idx.Facets) != 2 || !idx.Facets[1].IsInterval() {
		t.Errorf("unexpected facets: %+v", idx.Facets)
	}
	if idx.DefaultFilter.Field != "is_isoform" {
		t.Errorf("default filter = %+v", idx.DefaultFilter)
	}
	if facets["proteins"]["reviewed"].ValueLabels["true"] != "Reviewed" {
		t.Errorf("facet display = %+v", facets["proteins"])
	}
}

func TestBuildRules_UsesIndexSort(t *testing.T) {
	cfg := config.Config{
		Indexes: map[string]config.IndexConfig{"proteins": {SortField: "seq"}},
		Jobs: config.JobsConfig{Mappings: []config.MappingRule{
			{From: "Gene_Name", To: "UniProtKB", Index: "proteins", FromField: "gene", ToField: "accession"},
		}},
	}

	rules := buildRules(cfg)
	if len(rules) != 1 || rules[0].Sort.Field != "seq" || rules[0].ToField != "accession" {
		t.Errorf("rules = %+v", rules)
	}
}

func TestOpenBackend_Bleve(t *testing.T) {
	cfg := config.Config{
		Search:  config.SearchConfig{Driver: config.DriverBleve},
		Indexes: map[string]config.IndexConfig{"proteins": {SortField: "seq", IDField: "accession"}},
		Jobs:    config.JobsConfig{Cache: config.JobCacheRedis},
	}

	b, err := openBackend(cfg)
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer b.store.Close()

	if b.redis != nil {
		t.Error("bleve backend must not expose a redis store")
	}
	if _, err := openJobStore(cfg, b); err == nil {
		t.Error("redis job cache without redis must fail")
	}
}
