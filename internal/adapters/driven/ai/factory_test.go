package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/memvault/internal/config"
)

func TestCreateEmbeddingService(t *testing.T) {
	t.Run("local provider needs no key", func(t *testing.T) {
		svc, err := CreateEmbeddingService(config.EmbeddingConfig{
			Provider:   "local",
			Dimensions: 128,
		})
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Equal(t, 128, svc.Dimensions())
		assert.Equal(t, "local-hash", svc.ModelName())
	})

	t.Run("openai without key degrades to nil", func(t *testing.T) {
		t.Setenv("MEMVAULT_TEST_EMBED_KEY", "")
		svc, err := CreateEmbeddingService(config.EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "MEMVAULT_TEST_EMBED_KEY",
		})
		require.NoError(t, err)
		assert.Nil(t, svc)
	})

	t.Run("openai with key creates service", func(t *testing.T) {
		t.Setenv("MEMVAULT_TEST_EMBED_KEY", "sk-test")
		svc, err := CreateEmbeddingService(config.EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "MEMVAULT_TEST_EMBED_KEY",
		})
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Equal(t, "text-embedding-3-small", svc.ModelName())
		assert.Equal(t, 1536, svc.Dimensions())
	})

	t.Run("unknown provider returns error", func(t *testing.T) {
		_, err := CreateEmbeddingService(config.EmbeddingConfig{Provider: "cohere"})
		assert.Error(t, err)
	})
}

func TestCreateCompletionService(t *testing.T) {
	t.Run("without key degrades to nil", func(t *testing.T) {
		t.Setenv("MEMVAULT_TEST_LLM_KEY", "")
		svc, err := CreateCompletionService(config.LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "MEMVAULT_TEST_LLM_KEY",
		})
		require.NoError(t, err)
		assert.Nil(t, svc)
	})

	t.Run("with key creates service", func(t *testing.T) {
		t.Setenv("MEMVAULT_TEST_LLM_KEY", "sk-test")
		svc, err := CreateCompletionService(config.LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "MEMVAULT_TEST_LLM_KEY",
		})
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Equal(t, "gpt-4o-mini", svc.ModelName())
	})

	t.Run("unknown provider returns error", func(t *testing.T) {
		_, err := CreateCompletionService(config.LLMConfig{Provider: "anthropic"})
		assert.Error(t, err)
	})
}
