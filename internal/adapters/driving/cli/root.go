// Package cli provides the command-line interface for memvault.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/memvault/internal/adapters/driven/ai"
	"github.com/custodia-labs/memvault/internal/codec"
	"github.com/custodia-labs/memvault/internal/config"
	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/core/ports/driving"
	"github.com/custodia-labs/memvault/internal/core/services"
	"github.com/custodia-labs/memvault/internal/logger"
	"github.com/custodia-labs/memvault/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	cfgPath     string
	memoryPath  string
	verboseFlag bool

	cfg config.Config

	// memoryService overrides the file-backed engine when set.
	// Tests inject mocks here.
	memoryService driving.MemoryService
)

var rootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "Single-file knowledge memory",
	Long: `Memvault stores text chunks as optical frames packed into video
segments inside one backing file, retrieves them through hybrid
lexical and vector search, and answers questions over the retrieved
context with an LLM.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verboseFlag)

		path := cfgPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		var err error
		cfg, err = config.Load(path)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.memvault/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&memoryPath, "file", "f", "", "memory file (default $MEMVAULT_FILE or ~/.memvault/memory.mv)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// resolveMemoryPath picks the memory file location from the flag, the
// environment, then the per-user default.
func resolveMemoryPath() (string, error) {
	if memoryPath != "" {
		return memoryPath, nil
	}
	if env := os.Getenv("MEMVAULT_FILE"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".memvault", "memory.mv"), nil
}

// openMemory builds the engine over the configured memory file. The
// returned close function commits pending state and releases the file;
// it is a no-op when a service has been injected.
func openMemory(readOnly bool) (driving.MemoryService, func() error, error) {
	if memoryService != nil {
		return memoryService, func() error { return nil }, nil
	}

	path, err := resolveMemoryPath()
	if err != nil {
		return nil, nil, err
	}

	embedder, err := ai.CreateEmbeddingService(cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(path, readOnly)
	if errors.Is(err, domain.ErrNotFound) && !readOnly {
		st, err = createStore(path, embedder)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open memory file %s: %w", path, err)
	}

	completer, err := ai.CreateCompletionService(cfg.LLM)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	packer := codec.NewPacker(codec.NewRunner(cfg.Codec.FFmpegPath), nil)
	svc, err := services.NewMemory(cfg, st, packer, embedder, completer)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return svc, svc.Close, nil
}
