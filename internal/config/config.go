// Package config loads the engine configuration from a TOML file. The
// resulting Config is built once at startup and treated as immutable;
// everything downstream receives it by value or reads single fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// Config is the full engine configuration.
type Config struct {
	Memory    MemoryConfig    `toml:"memory"`
	Chunker   ChunkerConfig   `toml:"chunker"`
	Optical   OpticalConfig   `toml:"optical"`
	Codec     CodecConfig     `toml:"codec"`
	Cache     CacheConfig     `toml:"cache"`
	Index     IndexConfig     `toml:"index"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Ask       AskConfig       `toml:"ask"`
	Ingest    IngestConfig    `toml:"ingest"`
}

// MemoryConfig configures the backing file.
type MemoryConfig struct {
	// CapacityBytes caps the file size for newly created files. Zero
	// means unbounded.
	CapacityBytes int64 `toml:"capacity_bytes"`

	// WALSizeBytes is the embedded WAL region size for new files.
	WALSizeBytes int64 `toml:"wal_size_bytes"`
}

// ChunkerConfig configures text segmentation.
type ChunkerConfig struct {
	ChunkSize int `toml:"chunk_size"`
	Overlap   int `toml:"overlap"`
}

// OpticalConfig configures frame rasterisation.
type OpticalConfig struct {
	// Redundancy is the error-correction level: low, medium, quartile
	// or high.
	Redundancy string `toml:"redundancy"`

	// FrameSize is the rendered QR image edge in pixels.
	FrameSize int `toml:"frame_size"`
}

// CodecConfig configures segment packing.
type CodecConfig struct {
	// Profile is the preferred codec profile name.
	Profile string `toml:"profile"`

	// FFmpegPath overrides PATH lookup of the ffmpeg binary.
	FFmpegPath string `toml:"ffmpeg_path"`
}

// CacheConfig configures the decoded-frame cache.
type CacheConfig struct {
	Capacity        int `toml:"capacity"`
	PrefetchDepth   int `toml:"prefetch_depth"`
	DecodeTimeoutMS int `toml:"decode_timeout_ms"`
}

// IndexConfig configures the vector index.
type IndexConfig struct {
	// Kind is "exact" or "partitioned".
	Kind       string `toml:"kind"`
	Partitions int    `toml:"partitions"`
	NProbe     int    `toml:"nprobe"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "local".
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	BaseURL    string `toml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `toml:"api_key_env"`

	// RequestsPerMinute rate-limits provider calls. Zero disables.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`
}

// AskConfig configures context assembly.
type AskConfig struct {
	ChunksPerQuery  int     `toml:"chunks_per_query"`
	ContextTokens   int     `toml:"context_tokens"`
	Temperature     float64 `toml:"temperature"`
	MaxOutputTokens int     `toml:"max_output_tokens"`

	// MaxHistory bounds the retained conversation exchanges; one
	// exchange is a question and its answer. Older exchanges are
	// dropped.
	MaxHistory int `toml:"max_history"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// Workers bounds the parallel encode and embed workers.
	Workers int `toml:"workers"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Memory:  MemoryConfig{WALSizeBytes: 1 << 20},
		Chunker: ChunkerConfig{ChunkSize: 4096, Overlap: 200},
		Optical: OpticalConfig{Redundancy: "medium", FrameSize: 512},
		Codec:   CodecConfig{Profile: "h264"},
		Cache:   CacheConfig{Capacity: 256, PrefetchDepth: 4, DecodeTimeoutMS: 5000},
		Index:   IndexConfig{Kind: "exact", Partitions: 64, NProbe: 8},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Ask:    AskConfig{ChunksPerQuery: 5, ContextTokens: 8192, Temperature: 0.2, MaxOutputTokens: 1024, MaxHistory: 20},
		Ingest: IngestConfig{Workers: 4},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".memvault", "config.toml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults;
// a malformed or invalid file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
	}

	if c.Chunker.ChunkSize <= 0 {
		return bad("chunker.chunk_size must be positive")
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		return bad("chunker.overlap must be in [0, chunk_size)")
	}
	switch c.Optical.Redundancy {
	case "low", "medium", "quartile", "high":
	default:
		return bad("optical.redundancy %q is not one of low, medium, quartile, high", c.Optical.Redundancy)
	}
	if c.Cache.Capacity <= 0 {
		return bad("cache.capacity must be positive")
	}
	if c.Cache.PrefetchDepth < 0 {
		return bad("cache.prefetch_depth must not be negative")
	}
	switch c.Index.Kind {
	case "exact":
	case "partitioned":
		if c.Index.Partitions <= 0 {
			return bad("index.partitions must be positive")
		}
		if c.Index.NProbe <= 0 || c.Index.NProbe > c.Index.Partitions {
			return bad("index.nprobe must be in [1, index.partitions]")
		}
	default:
		return bad("index.kind %q is not one of exact, partitioned", c.Index.Kind)
	}
	switch c.Embedding.Provider {
	case "openai", "local":
	default:
		return bad("embedding.provider %q is not one of openai, local", c.Embedding.Provider)
	}
	if c.LLM.Provider != "openai" {
		return bad("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.Ask.ChunksPerQuery <= 0 {
		return bad("ask.chunks_per_query must be positive")
	}
	if c.Ask.ContextTokens <= 0 {
		return bad("ask.context_tokens must be positive")
	}
	if c.Ask.MaxHistory <= 0 {
		return bad("ask.max_history must be positive")
	}
	if c.Ingest.Workers <= 0 {
		return bad("ingest.workers must be positive")
	}
	return nil
}
