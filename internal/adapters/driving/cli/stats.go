package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counters and index state for the memory file",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output stats as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openMemory(true)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	if statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Chunks:     %d\n", stats.ChunkCount)
	cmd.Printf("Frames:     %d\n", stats.FrameCount)
	cmd.Printf("Segments:   %d\n", stats.SegmentCount)
	cmd.Printf("Tombstones: %.1f%%\n", stats.TombstoneRate*100)
	cmd.Printf("File size:  %d bytes\n", stats.FileBytes)
	cmd.Printf("WAL:        %d pending bytes, sequence %d\n", stats.WALPendingBytes, stats.WALSequence)
	cmd.Printf("Indexes:    vector=%s lexical=%s time=%s\n",
		presence(stats.HasVecIndex), presence(stats.HasLexIndex), presence(stats.HasTimeIndex))
	return nil
}

func presence(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
