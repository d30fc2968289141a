// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultDimensions is the vector size produced by every built-in backend preset.
const DefaultDimensions = 1024

// Backend is a preset for an OpenAI-compatible embedding service.
// Backends differ only in where they live, which model they serve and
// whether they need an API key.
type Backend struct {
	Name        string
	BaseURL     string
	Model       string
	Dimensions  int
	RequiresKey bool
}

// Backends lists the built-in presets by name.
var Backends = map[string]Backend{
	"openai": {
		Name:        "openai",
		BaseURL:     "https://api.openai.com/v1",
		Model:       "text-embedding-3-small",
		Dimensions:  DefaultDimensions,
		RequiresKey: true,
	},
	"siliconflow": {
		Name:        "siliconflow",
		BaseURL:     "https://api.siliconflow.cn/v1",
		Model:       "BAAI/bge-m3",
		Dimensions:  DefaultDimensions,
		RequiresKey: true,
	},
	"dashscope": {
		Name:        "dashscope",
		BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:       "text-embedding-v3",
		Dimensions:  DefaultDimensions,
		RequiresKey: true,
	},
	"ollama": {
		Name:       "ollama",
		BaseURL:    "http://localhost:11434/v1",
		Model:      "bge-m3",
		Dimensions: DefaultDimensions,
	},
}

// BackendNames returns the preset names in sorted order.
func BackendNames() []string {
	names := make([]string, 0, len(Backends))
	for name := range Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config holds configuration for an embedding service.
type Config struct {
	// Backend names the preset this configuration started from.
	// Example: "siliconflow", "ollama"
	Backend string

	// BaseURL is the root of the OpenAI-compatible API.
	// Example: "http://localhost:11434/v1"
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the embedding model identifier.
	// Example: "BAAI/bge-m3", "text-embedding-v3"
	Model string

	// Dimensions is the requested and expected vector length.
	// Default: 1024
	Dimensions int

	// BatchSize is the maximum number of texts sent per request.
	// Default: 32
	BatchSize int

	// Timeout bounds a single embedding request.
	// Default: 60s
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend applies a named preset. Unknown names are kept so Validate can
// report them. Options after WithBackend override the preset.
func WithBackend(name string) ConfigOption {
	return func(c *Config) {
		c.Backend = name
		if b, ok := Backends[name]; ok {
			c.BaseURL = b.BaseURL
			c.Model = b.Model
			c.Dimensions = b.Dimensions
		}
	}
}

// WithBaseURL sets the embedding service URL.
func WithBaseURL(url string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithDimensions sets the vector length.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithBatchSize sets the maximum number of texts per request.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// DefaultConfig returns a Config for a local Ollama server.
func DefaultConfig() *Config {
	cfg := &Config{
		BatchSize: 32,
		Timeout:   60 * time.Second,
	}
	WithBackend("ollama")(cfg)
	return cfg
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend("siliconflow"),
//	    WithAPIKey(os.Getenv("SILICONFLOW_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to BaseURL if missing, which OpenAI-compatible
// servers expect.
func (c *Config) Normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.BaseURL != "" && !strings.HasSuffix(c.BaseURL, "/v1") {
		c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
		if !strings.HasSuffix(c.BaseURL, "/v1") {
			c.BaseURL = c.BaseURL + "/v1"
		}
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	var preset Backend
	if c.Backend != "" {
		b, ok := Backends[c.Backend]
		if !ok {
			return fmt.Errorf("ai config: unknown backend %q (known: %s)", c.Backend, strings.Join(BackendNames(), ", "))
		}
		preset = b
	}

	if c.BaseURL == "" {
		return errors.New("ai config: BaseURL is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.Dimensions < 1 {
		return errors.New("ai config: Dimensions must be positive")
	}
	if c.BatchSize < 1 {
		return errors.New("ai config: BatchSize must be positive")
	}
	if preset.RequiresKey && c.APIKey == "" {
		return fmt.Errorf("ai config: backend %q requires an API key", c.Backend)
	}
	return nil
}
