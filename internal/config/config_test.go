package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[chunker]
chunk_size = 1024
overlap = 64

[codec]
profile = "vp9"

[index]
kind = "partitioned"
partitions = 16
nprobe = 4

[embedding]
provider = "local"
model = "local-hash"
dimensions = 256
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Chunker.ChunkSize)
	assert.Equal(t, 64, cfg.Chunker.Overlap)
	assert.Equal(t, "vp9", cfg.Codec.Profile)
	assert.Equal(t, "partitioned", cfg.Index.Kind)
	assert.Equal(t, 16, cfg.Index.Partitions)
	assert.Equal(t, "local", cfg.Embedding.Provider)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Cache, cfg.Cache)
	assert.Equal(t, Default().Ask, cfg.Ask)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("chunker = ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Chunker.ChunkSize = 0 }},
		{"overlap >= chunk size", func(c *Config) { c.Chunker.Overlap = c.Chunker.ChunkSize }},
		{"unknown redundancy", func(c *Config) { c.Optical.Redundancy = "maximum" }},
		{"zero cache capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"negative prefetch", func(c *Config) { c.Cache.PrefetchDepth = -1 }},
		{"unknown index kind", func(c *Config) { c.Index.Kind = "hnsw" }},
		{"partitioned without partitions", func(c *Config) {
			c.Index.Kind = "partitioned"
			c.Index.Partitions = 0
		}},
		{"nprobe over partitions", func(c *Config) {
			c.Index.Kind = "partitioned"
			c.Index.Partitions = 4
			c.Index.NProbe = 5
		}},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "bedrock" }},
		{"zero chunks per query", func(c *Config) { c.Ask.ChunksPerQuery = 0 }},
		{"zero context tokens", func(c *Config) { c.Ask.ContextTokens = 0 }},
		{"zero max history", func(c *Config) { c.Ask.MaxHistory = 0 }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfiguration)
		})
	}
}
