package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vector index drivers.
const (
	VectorDriverValkey = "valkey"
	VectorDriverMemory = "memory"
)

// Config holds the cookbook service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Vector     VectorConfig     `yaml:"vector"`
	Lexical    LexicalConfig    `yaml:"lexical"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Listener   ListenerConfig   `yaml:"listener"`
	Search     SearchConfig     `yaml:"search"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Pagination PaginationConfig `yaml:"pagination"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
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
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	DSN              string `yaml:"dsn"`
	MaxConns         int32  `yaml:"max_conns"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
	Channel          string `yaml:"channel"` // LISTEN/NOTIFY channel for index events
}

// VectorConfig selects and tunes the vector index backend.
type VectorConfig struct {
	Driver          string   `yaml:"driver"` // valkey, memory (default: valkey)
	Addrs           []string `yaml:"addrs"`
	Password        string   `yaml:"password"`
	IndexName       string   `yaml:"index_name"`
	HNSWM           int      `yaml:"hnsw_m"`
	HNSWEFConstruct int      `yaml:"hnsw_ef_construction"`
	HNSWEFSearch    int      `yaml:"hnsw_ef_search"`
}

// LexicalConfig holds full-text index settings. Empty path keeps the index in memory.
type LexicalConfig struct {
	Path string `yaml:"path"`
}

// IndexerConfig tunes the index writer and the backlog reconciler.
type IndexerConfig struct {
	BatchSize         int `yaml:"batch_size"`
	IntervalMs        int `yaml:"interval_ms"`
	ErrorBackoffMs    int `yaml:"error_backoff_ms"`
	BackendTimeoutSec int `yaml:"backend_timeout_sec"`
	RetryAttempts     int `yaml:"retry_attempts"`
	RetryDelayMs      int `yaml:"retry_delay_ms"`
	VectorConcurrency int `yaml:"vector_concurrency"`
}

// ListenerConfig tunes change notification subscription restarts.
type ListenerConfig struct {
	Disabled         bool `yaml:"disabled"`
	BackoffInitialMs int  `yaml:"backoff_initial_ms"`
	BackoffMaxMs     int  `yaml:"backoff_max_ms"`
}

// SearchConfig holds hybrid query settings.
type SearchConfig struct {
	TimeoutSec     int     `yaml:"timeout_sec"`
	VectorLimit    int     `yaml:"vector_limit"`
	VectorMinScore float64 `yaml:"vector_min_score"`
	LexicalLimit   int     `yaml:"lexical_limit"`
	EmbedQueries   bool    `yaml:"embed_queries"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding provider settings.
// Empty model disables embedding.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	Cache               bool   `yaml:"cache"`
	CacheTTLSec         int    `yaml:"cache_ttl_sec"` // 0 keeps cached vectors forever
	MaxConcurrency      int    `yaml:"max_concurrency"`
	TimeoutSec          int    `yaml:"timeout_sec"`
	EmbedDocuments      bool   `yaml:"embed_documents"`
}

// Enabled reports whether an embedding provider is configured.
func (e EmbeddingConfig) Enabled() bool { return e.Model != "" }

// PaginationConfig holds recipe listing page sizes.
type PaginationConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.Channel == "" {
		c.Database.Channel = "search_index"
	}
	if c.Vector.Driver == "" {
		c.Vector.Driver = VectorDriverValkey
	}
	if c.Vector.IndexName == "" {
		c.Vector.IndexName = "cookbook:recipes:idx"
	}
	if c.Vector.HNSWM <= 0 {
		c.Vector.HNSWM = 16
	}
	if c.Vector.HNSWEFConstruct <= 0 {
		c.Vector.HNSWEFConstruct = 200
	}
	if c.Vector.HNSWEFSearch <= 0 {
		c.Vector.HNSWEFSearch = 20
	}
	if c.Indexer.BatchSize <= 0 {
		c.Indexer.BatchSize = 50
	}
	if c.Indexer.IntervalMs <= 0 {
		c.Indexer.IntervalMs = 500
	}
	if c.Indexer.ErrorBackoffMs <= 0 {
		c.Indexer.ErrorBackoffMs = 5000
	}
	if c.Indexer.BackendTimeoutSec <= 0 {
		c.Indexer.BackendTimeoutSec = 10
	}
	if c.Indexer.RetryAttempts <= 0 {
		c.Indexer.RetryAttempts = 3
	}
	if c.Indexer.RetryDelayMs <= 0 {
		c.Indexer.RetryDelayMs = 200
	}
	if c.Indexer.VectorConcurrency <= 0 {
		c.Indexer.VectorConcurrency = 8
	}
	if c.Listener.BackoffInitialMs <= 0 {
		c.Listener.BackoffInitialMs = 500
	}
	if c.Listener.BackoffMaxMs <= 0 {
		c.Listener.BackoffMaxMs = 30000
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.Search.VectorLimit <= 0 {
		c.Search.VectorLimit = 10
	}
	if c.Search.VectorMinScore <= 0 {
		c.Search.VectorMinScore = 0.25
	}
	if c.Search.LexicalLimit <= 0 {
		c.Search.LexicalLimit = 20
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.MaxConcurrency <= 0 {
		c.Embedding.MaxConcurrency = 4
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Pagination.DefaultPageSize <= 0 {
		c.Pagination.DefaultPageSize = 9
	}
	if c.Pagination.MaxPageSize <= 0 {
		c.Pagination.MaxPageSize = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Vector.Driver {
	case VectorDriverValkey:
		if len(c.Vector.Addrs) == 0 {
			return fmt.Errorf("vector.addrs is required for driver %q", c.Vector.Driver)
		}
	case VectorDriverMemory:
		if c.Embedding.Cache {
			return fmt.Errorf("embedding.cache requires vector.driver %q", VectorDriverValkey)
		}
	default:
		return fmt.Errorf("vector.driver must be %q or %q, got %q",
			VectorDriverValkey, VectorDriverMemory, c.Vector.Driver)
	}
	if c.Search.VectorMinScore > 1 {
		return fmt.Errorf("search.vector_min_score must be in [0,1], got %g", c.Search.VectorMinScore)
	}
	if c.Pagination.DefaultPageSize > c.Pagination.MaxPageSize {
		return fmt.Errorf("pagination.default_page_size %d exceeds max_page_size %d",
			c.Pagination.DefaultPageSize, c.Pagination.MaxPageSize)
	}
	if c.Search.EmbedQueries && !c.Embedding.Enabled() {
		return fmt.Errorf("search.embed_queries requires embedding.model")
	}
	if c.Embedding.EmbedDocuments && !c.Embedding.Enabled() {
		return fmt.Errorf("embedding.embed_documents requires embedding.model")
	}
	return nil
}

// Interval is the reconciler sweep period.
func (c IndexerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// ErrorBackoff is the reconciler pause after a failed sweep.
func (c IndexerConfig) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffMs) * time.Millisecond
}

// BackendTimeout bounds each lexical or vector index call.
func (c IndexerConfig) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSec) * time.Second
}

// CacheTTL is the lifetime of a cached embedding.
func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSec) * time.Second
}

// RetryDelay is the first pause between backend retries.
func (c IndexerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
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
