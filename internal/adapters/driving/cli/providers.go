package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/memvault/internal/core/ports/driven"
	"github.com/custodia-labs/memvault/internal/store"
)

// createStore initialises a new memory file, binding it to the
// embedding identity when an embedder is configured.
func createStore(path string, embedder driven.EmbeddingService) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory directory: %w", err)
		}
	}
	opts := store.CreateOptions{
		WALSize:       uint64(cfg.Memory.WALSizeBytes),
		CapacityBytes: uint64(cfg.Memory.CapacityBytes),
	}
	if embedder != nil {
		opts.EmbeddingModel = embedder.ModelName()
		opts.EmbeddingDim = embedder.Dimensions()
	}
	return store.Create(path, opts)
}
