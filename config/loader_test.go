package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
source:
  base_url: https://docs.example.com/api
  root_id: kb-root
embedding:
  backend: siliconflow
  api_key: sk-test
index:
  url: qdrant.internal:6334
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "catalog", cfg.Source.SourceType)
	assert.Equal(t, 100, cfg.Source.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, "ollama", cfg.Embedding.Backend)
	assert.Equal(t, IndexBackendQdrant, cfg.Index.Backend)
	assert.Equal(t, 1024, cfg.Index.VectorSize)
	assert.Equal(t, ChunkingConfig{Size: 500, Overlap: 100}, cfg.Chunking)
	assert.Equal(t, ContextConfig{K: 5, MinScore: 0.5, MaxLength: 4000}, cfg.Context)
	assert.Equal(t, SchedulerConfig{MaxConcurrent: 30, MinInterval: 50 * time.Millisecond}, cfg.Scheduler)
	assert.Equal(t, 10, cfg.Sync.MaxRounds)
	assert.Equal(t, 2, cfg.Sync.MaxParseFailures)
	assert.Equal(t, time.Second, cfg.Sync.RoundDelay)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_ValidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://docs.example.com/api", cfg.Source.BaseURL)
	assert.Equal(t, "kb-root", cfg.Source.RootID)
	assert.Equal(t, "qdrant.internal:6334", cfg.Index.URL)

	ai := cfg.AIConfig()
	assert.Equal(t, "siliconflow", ai.Backend)
	assert.Equal(t, "BAAI/bge-m3", ai.Model)
	assert.Equal(t, "sk-test", ai.APIKey)
	assert.Equal(t, 1024, ai.Dimensions)
	assert.Equal(t, 32, ai.BatchSize)
}

func TestLoad_ExplicitZeroOverridesDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML+`
context:
  min_score: 0
sync:
  round_delay: 0s
`))
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Context.MinScore)
	assert.Equal(t, time.Duration(0), cfg.Sync.RoundDelay)
	assert.Equal(t, 5, cfg.Context.K)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RAGSYNC_SOURCE_ROOT_ID", "from-env")
	t.Setenv("RAGSYNC_SYNC_MAX_ROUNDS", "3")
	t.Setenv("RAGSYNC_SCHEDULER_MIN_INTERVAL", "250ms")
	t.Setenv("RAGSYNC_EMBEDDING_API_KEY", "sk-env")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Source.RootID)
	assert.Equal(t, 3, cfg.Sync.MaxRounds)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.MinInterval)
	assert.Equal(t, "sk-env", cfg.AIConfig().APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "source: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "chunking:\n  size: 100\n  overlap: 100\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.base_url is required")
	assert.Contains(t, err.Error(), "source.root_id is required")
	assert.Contains(t, err.Error(), "chunking.overlap")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"RAGSYNC_SOURCE_BASE_URL":         "source.base_url",
		"RAGSYNC_SYNC_MAX_PARSE_FAILURES": "sync.max_parse_failures",
		"RAGSYNC_METRICS_ADDR":            "metrics.addr",
		"RAGSYNC_DEBUG":                   "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
