package services

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/memvault/internal/logger"
)

// tokenEstimator counts prompt tokens with the model's BPE when it can
// be loaded, and falls back to the bytes/4 heuristic otherwise, so
// context assembly never depends on the encoder being present.
type tokenEstimator struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func newTokenEstimator(model string) *tokenEstimator {
	return &tokenEstimator{model: model}
}

func (t *tokenEstimator) load() {
	enc, err := tiktoken.EncodingForModel(t.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		logger.Warn("token encoder unavailable, estimating tokens as bytes/4: %v", err)
		return
	}
	t.enc = enc
}

// Count estimates the token count of text.
func (t *tokenEstimator) Count(text string) int {
	t.once.Do(t.load)
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}
