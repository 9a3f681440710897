package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

var (
	askChunks      int
	askTemperature float64
	askMaxTokens   int
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question over the memory",
	Long: `Retrieves the most relevant chunks for the question, assembles a
token-bounded context and sends it to the configured LLM. The answer
cites the context passages it drew from as [n].`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askChunks, "chunks", 0, "retrieved chunks per question (0 = configured default)")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", -1, "sampling temperature (negative = configured default)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "completion token cap (0 = configured default)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the response as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openMemory(true)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	resp, err := svc.Ask(cmd.Context(), args[0], domain.AskOptions{
		ChunksPerQuery:  askChunks,
		Temperature:     askTemperature,
		MaxOutputTokens: askMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(resp.Answer)
	if len(resp.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, c := range resp.Citations {
			cmd.Printf("  [%d] %s (%.4f)\n", i+1, c.URI, c.Score)
		}
	}
	return nil
}
