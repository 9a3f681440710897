package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/memvault/internal/adapters/driven/ai"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new memory file",
	Long: `Initialises an empty memory file at the configured location. The
file records the embedding model identity so later opens reject a
mismatched embedder. Ingest creates the file on demand, so this is
only needed to pre-create a file with specific settings.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, _ []string) error {
	path, err := resolveMemoryPath()
	if err != nil {
		return err
	}
	embedder, err := ai.CreateEmbeddingService(cfg.Embedding)
	if err != nil {
		return err
	}
	if embedder != nil {
		defer embedder.Close() //nolint:errcheck
	}

	st, err := createStore(path, embedder)
	if err != nil {
		return err
	}
	if err := st.Close(); err != nil {
		return err
	}
	cmd.Printf("Created %s\n", path)
	return nil
}
