package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

var verifyJSON bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-checksum every committed segment and index region",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openMemory(true)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	report, err := svc.Verify(cmd.Context())
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	if verifyJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
	} else {
		for _, c := range report.Checks {
			status := "ok"
			if !c.Passed {
				status = "FAILED"
			}
			cmd.Printf("  %-18s %-12s %s", c.Name, c.Target, status)
			if c.Detail != "" {
				cmd.Printf("  (%s)", c.Detail)
			}
			cmd.Println()
		}
		cmd.Printf("Verification %s.\n", report.Status)
	}

	if report.Status == domain.VerifyFailed {
		return fmt.Errorf("verification failed")
	}
	return nil
}
