// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"fmt"
	"os"

	"github.com/custodia-labs/memvault/internal/adapters/driven/embedding/local"
	openaiembed "github.com/custodia-labs/memvault/internal/adapters/driven/embedding/openai"
	openaillm "github.com/custodia-labs/memvault/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/memvault/internal/config"
	"github.com/custodia-labs/memvault/internal/core/ports/driven"
	"github.com/custodia-labs/memvault/internal/logger"
)

// CreateEmbeddingService creates the appropriate embedding service based
// on configuration. Returns nil without error when the provider needs an
// API key that is not set; retrieval then degrades to the lexical index.
func CreateEmbeddingService(cfg config.EmbeddingConfig) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case "local":
		return local.NewEmbeddingService(cfg.Dimensions), nil

	case "openai":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			logger.Warn("%s is not set, semantic search disabled", cfg.APIKeyEnv)
			return nil, nil
		}
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:            key,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// CreateCompletionService creates the appropriate completion service
// based on configuration. Returns nil without error when the API key is
// not set; ask is then unavailable while ingest and search keep working.
func CreateCompletionService(cfg config.LLMConfig) (driven.CompletionService, error) {
	switch cfg.Provider {
	case "openai":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			logger.Warn("%s is not set, ask disabled", cfg.APIKeyEnv)
			return nil, nil
		}
		return openaillm.NewCompletionService(openaillm.Config{
			APIKey:  key,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
