package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

var (
	ingestURI        string
	ingestTitle      string
	ingestTags       map[string]string
	ingestSupersedes []string
	ingestJSON       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest text into the memory",
	Long: `Reads text from the given file, or from stdin when the path is "-"
or omitted, chunks it, encodes the chunks as optical frames and packs
them into a new segment of the memory file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURI, "uri", "", "source URI recorded on every chunk")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "title recorded on every chunk")
	ingestCmd.Flags().StringToStringVar(&ingestTags, "tag", nil, "key=value tags recorded on every chunk")
	ingestCmd.Flags().StringSliceVar(&ingestSupersedes, "supersedes", nil, "chunk IDs tombstoned by this ingestion")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the receipt as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	text, uri, err := readIngestInput(args)
	if err != nil {
		return err
	}
	if ingestURI != "" {
		uri = ingestURI
	}

	svc, closeFn, err := openMemory(false)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	receipt, err := svc.Ingest(cmd.Context(), text, domain.IngestOptions{
		URI:        uri,
		Title:      ingestTitle,
		Tags:       ingestTags,
		Supersedes: ingestSupersedes,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestJSON {
		data, err := json.MarshalIndent(receipt, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal receipt: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Ingested %d chunks into %d frames (profile %s, %d bytes).\n",
		len(receipt.ChunkIDs), len(receipt.FrameSeqs), receipt.Profile, receipt.SegmentBytes)
	return nil
}

// readIngestInput returns the text and a default URI for it. A file
// argument becomes a file:// URI; stdin gets a synthetic one from the
// engine.
func readIngestInput(args []string) (string, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), "", nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), "file://" + args[0], nil
}
