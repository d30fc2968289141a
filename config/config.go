// Package config provides configuration loading for ragsync.
//
// Configuration is read from a YAML file and overridden by RAGSYNC_*
// environment variables. Every field has a default, so an empty file is a
// valid starting point once the catalog and index settings are filled in.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/catalog"
	"github.com/poiesic/ragsync/retrieval"
	"github.com/poiesic/ragsync/vectorstore/qdrant"
)

// Index backends.
const (
	IndexBackendQdrant = "qdrant"
	IndexBackendBadger = "badger"
)

// Config holds the complete ragsync configuration.
type Config struct {
	Source    SourceConfig    `koanf:"source"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Index     IndexConfig     `koanf:"index"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
	Context   ContextConfig   `koanf:"context"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Sync      SyncConfig      `koanf:"sync"`
	Storage   StorageConfig   `koanf:"storage"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// SourceConfig locates the remote catalog.
type SourceConfig struct {
	BaseURL    string        `koanf:"base_url"`
	RootID     string        `koanf:"root_id"`
	SourceType string        `koanf:"source_type"`
	PageSize   int           `koanf:"page_size"`
	Timeout    time.Duration `koanf:"timeout"`
}

// EmbeddingConfig selects the embedding backend. Empty fields fall back to
// the backend preset.
type EmbeddingConfig struct {
	Backend    string        `koanf:"backend"`
	BaseURL    string        `koanf:"base_url"`
	APIKey     string        `koanf:"api_key"`
	Model      string        `koanf:"model"`
	Dimensions int           `koanf:"dimensions"`
	BatchSize  int           `koanf:"batch_size"`
	Timeout    time.Duration `koanf:"timeout"`
}

// IndexConfig selects where chunk vectors are stored.
type IndexConfig struct {
	Backend    string `koanf:"backend"` // "qdrant" or "badger"
	URL        string `koanf:"url"`
	APIKey     string `koanf:"api_key"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// ChunkingConfig sizes chunks in characters.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// ContextConfig holds the default context assembly bounds.
type ContextConfig struct {
	K         int     `koanf:"k"`
	MinScore  float64 `koanf:"min_score"`
	MaxLength int     `koanf:"max_length"`
}

// SchedulerConfig bounds outbound work during a sync.
type SchedulerConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent"`
	MinInterval   time.Duration `koanf:"min_interval"`
}

// SyncConfig holds the convergence loop policy.
type SyncConfig struct {
	MaxRounds        int           `koanf:"max_rounds"`
	MaxParseFailures int           `koanf:"max_parse_failures"`
	RoundDelay       time.Duration `koanf:"round_delay"`
	CategoryID       string        `koanf:"category_id"`
}

// StorageConfig locates the local Badger database.
type StorageConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// MetricsConfig holds the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Source.BaseURL == "" {
		add("source.base_url is required")
	}
	if c.Source.RootID == "" {
		add("source.root_id is required")
	}
	if c.Source.SourceType == "" {
		add("source.source_type is required")
	}

	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Index.Backend {
	case IndexBackendQdrant:
		if c.Index.URL == "" {
			add("index.url is required for the qdrant backend")
		}
		if c.Index.Collection == "" {
			add("index.collection is required for the qdrant backend")
		}
	case IndexBackendBadger:
	default:
		add("index.backend must be %q or %q, got %q", IndexBackendQdrant, IndexBackendBadger, c.Index.Backend)
	}
	if c.Index.VectorSize < 1 {
		add("index.vector_size must be positive")
	} else if dims := c.AIConfig().Dimensions; dims != c.Index.VectorSize {
		add("embedding dimensions (%d) must equal index.vector_size (%d)", dims, c.Index.VectorSize)
	}

	if c.Chunking.Size < 1 {
		add("chunking.size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap must be in [0, chunking.size)")
	}

	if c.Context.K < 0 {
		add("context.k cannot be negative")
	}
	if c.Context.MinScore < -1 || c.Context.MinScore > 1 {
		add("context.min_score must be in [-1, 1]")
	}
	if c.Context.MaxLength < 0 {
		add("context.max_length cannot be negative")
	}

	if c.Scheduler.MaxConcurrent < 1 {
		add("scheduler.max_concurrent must be positive")
	}
	if c.Scheduler.MinInterval < 0 {
		add("scheduler.min_interval cannot be negative")
	}

	if c.Sync.MaxRounds < 1 {
		add("sync.max_rounds must be positive")
	}
	if c.Sync.MaxParseFailures < 1 {
		add("sync.max_parse_failures must be positive")
	}
	if c.Sync.RoundDelay < 0 {
		add("sync.round_delay cannot be negative")
	}

	if c.Storage.Path == "" && !c.Storage.InMemory {
		add("storage.path is required unless storage.in_memory is set")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// AIConfig builds the embedding configuration: the backend preset first,
// then every field set explicitly.
func (c *Config) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{ai.WithBackend(c.Embedding.Backend)}
	if c.Embedding.BaseURL != "" {
		opts = append(opts, ai.WithBaseURL(c.Embedding.BaseURL))
	}
	if c.Embedding.APIKey != "" {
		opts = append(opts, ai.WithAPIKey(c.Embedding.APIKey))
	}
	if c.Embedding.Model != "" {
		opts = append(opts, ai.WithModel(c.Embedding.Model))
	}
	if c.Embedding.Dimensions > 0 {
		opts = append(opts, ai.WithDimensions(c.Embedding.Dimensions))
	}
	if c.Embedding.BatchSize > 0 {
		opts = append(opts, ai.WithBatchSize(c.Embedding.BatchSize))
	}
	if c.Embedding.Timeout > 0 {
		opts = append(opts, ai.WithTimeout(c.Embedding.Timeout))
	}
	return ai.NewConfig(opts...)
}

// CatalogConfig returns the catalog client configuration.
func (c *Config) CatalogConfig() catalog.Config {
	return catalog.Config{
		BaseURL:  c.Source.BaseURL,
		PageSize: c.Source.PageSize,
		Timeout:  c.Source.Timeout,
	}
}

// QdrantConfig returns the Qdrant store configuration.
func (c *Config) QdrantConfig() qdrant.Config {
	return qdrant.Config{
		URL:        c.Index.URL,
		APIKey:     c.Index.APIKey,
		Collection: c.Index.Collection,
	}
}

// RetrievalParams returns the default context assembly bounds.
func (c *Config) RetrievalParams() retrieval.Params {
	return retrieval.Params{
		K:         c.Context.K,
		MinScore:  float32(c.Context.MinScore),
		MaxLength: c.Context.MaxLength,
	}
}

// SlogLevel parses Level. Empty means info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
