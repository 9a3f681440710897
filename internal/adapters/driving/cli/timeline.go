package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

var (
	timelineLimit   int
	timelineReverse bool
	timelineJSON    bool
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List frames in chronological order",
	Args:  cobra.NoArgs,
	RunE:  runTimeline,
}

func init() {
	timelineCmd.Flags().IntVarP(&timelineLimit, "limit", "n", 20, "maximum number of entries (0 = all)")
	timelineCmd.Flags().BoolVar(&timelineReverse, "reverse", false, "newest frames first")
	timelineCmd.Flags().BoolVar(&timelineJSON, "json", false, "output entries as JSON")
	rootCmd.AddCommand(timelineCmd)
}

func runTimeline(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openMemory(true)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	entries, err := svc.Timeline(cmd.Context(), domain.TimelineOptions{
		Limit:   timelineLimit,
		Reverse: timelineReverse,
	})
	if err != nil {
		return fmt.Errorf("timeline failed: %w", err)
	}

	if timelineJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal entries: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		cmd.Println("No frames.")
		return nil
	}
	for _, e := range entries {
		cmd.Printf("  #%d  %s  %s\n", e.Seq, e.Timestamp.Format(time.RFC3339), e.URI)
		if e.Preview != "" {
			cmd.Printf("      %s\n", e.Preview)
		}
	}
	return nil
}
