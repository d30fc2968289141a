package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables that override the file.
	EnvPrefix = "RAGSYNC_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// defaults is loaded before the file so explicit zero values in the file
// or environment still win.
const defaults = `
source:
  source_type: catalog
  page_size: 100
  timeout: 30s
embedding:
  backend: ollama
  batch_size: 32
  timeout: 60s
index:
  backend: qdrant
  url: localhost:6334
  collection: knowledge_chunks
  vector_size: 1024
chunking:
  size: 500
  overlap: 100
context:
  k: 5
  min_score: 0.5
  max_length: 4000
scheduler:
  max_concurrent: 30
  min_interval: 50ms
sync:
  max_rounds: 10
  max_parse_failures: 2
  round_delay: 1s
storage:
  path: ./ragsync-data
log:
  level: info
`

// Load reads configuration with the following precedence (highest first):
//  1. Environment variables (RAGSYNC_SOURCE_BASE_URL, RAGSYNC_EMBEDDING_API_KEY, ...)
//  2. The YAML file at path, when path is not empty
//  3. Built-in defaults
//
// Environment variables map to keys by dropping the prefix, lowercasing and
// splitting on the first underscore:
//
//	RAGSYNC_SOURCE_ROOT_ID      -> source.root_id
//	RAGSYNC_SYNC_MAX_ROUNDS     -> sync.max_rounds
//	RAGSYNC_INDEX_COLLECTION    -> index.collection
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		content, err = io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(content) > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Parse layers defaults, the given YAML and the environment without
// validating the result.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// envKey maps RAGSYNC_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}
