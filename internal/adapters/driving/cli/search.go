package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

var (
	searchTopK     int
	searchJSON     bool
	searchLexical  bool
	searchSemantic bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the memory",
	Long: `Performs hybrid search over the stored chunks.
Combines keyword (BM25) and semantic (vector) retrieval, fusing the
two rankings. Matched chunks are decoded from their optical frames.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchLexical, "lexical", false, "lexical index only")
	searchCmd.Flags().BoolVar(&searchSemantic, "semantic", false, "vector index only")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openMemory(true)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	results, err := svc.Search(cmd.Context(), args[0], domain.SearchOptions{
		TopK:     searchTopK,
		Lexical:  searchLexical,
		Semantic: searchSemantic,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		title := results[i].Chunk.Title
		if title == "" {
			title = results[i].Chunk.ID
		}

		cmd.Printf("  [%d] %s (%.4f, %s)\n", i+1, title, results[i].Score, results[i].Source)
		if results[i].Chunk.URI != "" {
			cmd.Printf("      %s\n", results[i].Chunk.URI)
		}
		if snippet := snippetOf(results[i].Chunk.Text, 160); snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}
	return nil
}

func snippetOf(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
