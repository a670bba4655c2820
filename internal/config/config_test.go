package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:   HTTPConfig{Port: 8080},
		Search: SearchConfig{Driver: DriverRedis, Addrs: []string{"localhost:6379"}},
		Indexes: map[string]IndexConfig{
			"proteins": {SortField: "seq"},
		},
		Jobs: JobsConfig{Cache: JobCacheMemory},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Addrs = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing redis addrs")
	}

	expected := `search.addrs is required for driver "redis"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_BleveNeedsNoAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Search = SearchConfig{Driver: DriverBleve}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Driver = "solr"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestValidate_MissingSortField(t *testing.T) {
	cfg := validConfig()
	cfg.Indexes["proteins"] = IndexConfig{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing sort field")
	}

	expected := "indexes.proteins.sort_field is required"
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_BadInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Indexes["proteins"] = IndexConfig{
		SortField: "seq",
		Facets:    []FacetConfig{{Field: "length", Intervals: []string{"1-200"}}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for malformed interval")
	}
}

func TestValidate_RedisJobCacheNeedsRedisDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Search = SearchConfig{Driver: DriverBleve}
	cfg.Jobs.Cache = JobCacheRedis

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for redis job cache without redis driver")
	}
}

func TestValidate_MappingUnknownIndex(t *testing.T) {
	cfg := validConfig()
	cfg.Jobs.Mappings = []MappingRule{{
		From: "ACC", To: "GENE", Index: "genes", FromField: "accession", ToField: "gene",
	}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for mapping onto unknown index")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Indexes: map[string]IndexConfig{"proteins": {SortField: "seq"}}}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 0 {
		t.Errorf("expected WriteTimeoutSec=0, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Search.Driver != DriverRedis {
		t.Errorf("expected Driver=redis, got %q", cfg.Search.Driver)
	}
	if cfg.Indexes["proteins"].IDField != "id" {
		t.Errorf("expected IDField=id, got %q", cfg.Indexes["proteins"].IDField)
	}
	if cfg.Indexes["proteins"].TieBreaker != "id" {
		t.Errorf("expected TieBreaker to default to the id field, got %q", cfg.Indexes["proteins"].TieBreaker)
	}
	if cfg.Pagination.DefaultSize != 100 {
		t.Errorf("expected DefaultSize=100, got %d", cfg.Pagination.DefaultSize)
	}
	if cfg.Stream.FlushEvery != 5000 {
		t.Errorf("expected FlushEvery=5000, got %d", cfg.Stream.FlushEvery)
	}
	if cfg.Stream.LogEvery != 10000 {
		t.Errorf("expected LogEvery=10000, got %d", cfg.Stream.LogEvery)
	}
	if cfg.Jobs.Cache != JobCacheMemory {
		t.Errorf("expected Cache=memory, got %q", cfg.Jobs.Cache)
	}
	if cfg.Jobs.TTLSec != 3600 {
		t.Errorf("expected TTLSec=3600, got %d", cfg.Jobs.TTLSec)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:       HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Pagination: PaginationConfig{DefaultSize: 25, MaxSize: 50},
		Jobs:       JobsConfig{Workers: 2, QueueSize: 8},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Pagination.DefaultSize != 25 {
		t.Errorf("expected DefaultSize=25, got %d", cfg.Pagination.DefaultSize)
	}
	if cfg.Jobs.Workers != 2 || cfg.Jobs.QueueSize != 8 {
		t.Errorf("unexpected jobs config: %+v", cfg.Jobs)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("SEARCHSTREAM_TEST_PORT", "9090")

	data := []byte(`
http:
  port: ${SEARCHSTREAM_TEST_PORT}
search:
  driver: bleve
  password: ${SEARCHSTREAM_TEST_UNSET:-fallback}
indexes:
  proteins:
    sort_field: seq
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Search.Password != "fallback" {
		t.Errorf("expected default password, got %q", cfg.Search.Password)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("http: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.HasPrefix(err.Error(), "failed to parse config") {
		t.Errorf("unexpected error: %v", err)
	}
}
