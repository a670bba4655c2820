package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Search backend drivers.
const (
	DriverRedis         = "redis"
	DriverBleve         = "bleve"
	DriverElasticsearch = "elasticsearch"
)

// Job cache kinds.
const (
	JobCacheMemory = "memory"
	JobCacheRedis  = "redis"
)

// Config holds the searchstream server configuration.
type Config struct {
	HTTP       HTTPConfig             `yaml:"http"`
	Search     SearchConfig           `yaml:"search"`
	Indexes    map[string]IndexConfig `yaml:"indexes"`
	Pagination PaginationConfig       `yaml:"pagination"`
	Stream     StreamConfig           `yaml:"stream"`
	Jobs       JobsConfig             `yaml:"jobs"`
	Auth       AuthConfig             `yaml:"auth"`
	Logging    LoggingConfig          `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // 0 keeps streams unbounded
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds search backend connection settings.
type SearchConfig struct {
	Driver           string   `yaml:"driver"` // redis, bleve, elasticsearch (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	BlevePath        string   `yaml:"bleve_path"` // empty = in-memory index
}

// IndexConfig describes one searchable dataset.
type IndexConfig struct {
	SortField     string               `yaml:"sort_field"`
	SortDesc      bool                 `yaml:"sort_desc"`
	IDField       string               `yaml:"id_field"`
	TieBreaker    string               `yaml:"tie_breaker"` // unique sortable field; defaults to id_field
	Fields        []string             `yaml:"fields"`      // output columns, in order
	TextFields    []string             `yaml:"text_fields"` // matched-field diagnostics
	EntityPrefix  string               `yaml:"entity_prefix"`
	Facets        []FacetConfig        `yaml:"facets"`
	DefaultFilter *DefaultFilterConfig `yaml:"default_filter"`
}

// FacetConfig holds display settings for one facet field.
type FacetConfig struct {
	Field         string            `yaml:"field"`
	Label         string            `yaml:"label"`
	AllowMultiple bool              `yaml:"allow_multiple"`
	Values        map[string]string `yaml:"values"`    // raw value -> display label
	Intervals     []string          `yaml:"intervals"` // "lo,hi"; empty for value facets
	Limit         int               `yaml:"limit"`
}

// DefaultFilterConfig is a filter injected into queries that do not constrain Field themselves.
type DefaultFilterConfig struct {
	Field        string   `yaml:"field"`
	Value        string   `yaml:"value"`
	ExemptFields []string `yaml:"exempt_fields"`
}

// PaginationConfig holds page size limits.
type PaginationConfig struct {
	DefaultSize int `yaml:"default_size"`
	MaxSize     int `yaml:"max_size"`
}

// StreamConfig holds streaming writer pacing.
type StreamConfig struct {
	FlushEvery int `yaml:"flush_every"`
	LogEvery   int `yaml:"log_every"`
	BatchSize  int `yaml:"batch_size"`
}

// JobsConfig holds async job engine settings.
type JobsConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	TTLSec    int           `yaml:"ttl_sec"`
	Cache     string        `yaml:"cache"` // memory, redis (default: memory)
	CacheSize int           `yaml:"cache_size"`
	MaxIDs    int           `yaml:"max_ids"`
	Mappings  []MappingRule `yaml:"mappings"`
}

// MappingRule resolves identifiers of type From into identifiers of type To.
type MappingRule struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Index     string `yaml:"index"`
	FromField string `yaml:"from_field"`
	ToField   string `yaml:"to_field"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes, expanding ${VAR} references, applying defaults and validating.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.Driver == "" {
		c.Search.Driver = DriverRedis
	}
	if c.Search.ReadinessTimeout <= 0 {
		c.Search.ReadinessTimeout = 10
	}
	for name, idx := range c.Indexes {
		if idx.IDField == "" {
			idx.IDField = "id"
		}
		if idx.TieBreaker == "" {
			idx.TieBreaker = idx.IDField
		}
		c.Indexes[name] = idx
	}
	if c.Pagination.DefaultSize <= 0 {
		c.Pagination.DefaultSize = 100
	}
	if c.Pagination.MaxSize <= 0 {
		c.Pagination.MaxSize = 500
	}
	if c.Stream.FlushEvery <= 0 {
		c.Stream.FlushEvery = 5000
	}
	if c.Stream.LogEvery <= 0 {
		c.Stream.LogEvery = 10000
	}
	if c.Stream.BatchSize <= 0 {
		c.Stream.BatchSize = 500
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 4
	}
	if c.Jobs.QueueSize <= 0 {
		c.Jobs.QueueSize = 64
	}
	if c.Jobs.TTLSec <= 0 {
		c.Jobs.TTLSec = 3600
	}
	if c.Jobs.Cache == "" {
		c.Jobs.Cache = JobCacheMemory
	}
	if c.Jobs.CacheSize <= 0 {
		c.Jobs.CacheSize = 10000
	}
	if c.Jobs.MaxIDs <= 0 {
		c.Jobs.MaxIDs = 100000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Search.Driver {
	case DriverRedis, DriverElasticsearch:
		if len(c.Search.Addrs) == 0 {
			return fmt.Errorf("search.addrs is required for driver %q", c.Search.Driver)
		}
	case DriverBleve:
	default:
		return fmt.Errorf("search.driver must be one of redis, bleve, elasticsearch, got %q", c.Search.Driver)
	}
	if len(c.Indexes) == 0 {
		return fmt.Errorf("at least one index is required")
	}
	for name, idx := range c.Indexes {
		if idx.SortField == "" {
			return fmt.Errorf("indexes.%s.sort_field is required", name)
		}
		for _, f := range idx.Facets {
			if f.Field == "" {
				return fmt.Errorf("indexes.%s.facets: field is required", name)
			}
			for _, iv := range f.Intervals {
				if !strings.Contains(iv, ",") {
					return fmt.Errorf("indexes.%s.facets.%s: interval %q must be \"lo,hi\"", name, f.Field, iv)
				}
			}
		}
		if df := idx.DefaultFilter; df != nil && (df.Field == "" || df.Value == "") {
			return fmt.Errorf("indexes.%s.default_filter requires field and value", name)
		}
	}
	switch c.Jobs.Cache {
	case JobCacheMemory:
	case JobCacheRedis:
		if c.Search.Driver != DriverRedis {
			return fmt.Errorf("jobs.cache %q requires search.driver %q", JobCacheRedis, DriverRedis)
		}
	default:
		return fmt.Errorf("jobs.cache must be \"memory\" or \"redis\", got %q", c.Jobs.Cache)
	}
	for _, m := range c.Jobs.Mappings {
		if _, ok := c.Indexes[m.Index]; !ok {
			return fmt.Errorf("jobs.mappings %s->%s: unknown index %q", m.From, m.To, m.Index)
		}
		if m.FromField == "" || m.ToField == "" {
			return fmt.Errorf("jobs.mappings %s->%s: from_field and to_field are required", m.From, m.To)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
