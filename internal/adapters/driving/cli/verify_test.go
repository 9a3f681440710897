package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

func TestVerifyCmd_PassingReport(t *testing.T) {
	cleanup := setupTestService(&mockMemoryService{
		report: domain.VerifyReport{
			Status: domain.VerifyPassed,
			Checks: []domain.VerifyCheck{
				{Name: "toc-footer", Target: "footer", Passed: true},
				{Name: "segment-checksum", Target: "segment-1", Passed: true},
			},
		},
	})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"verify"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Verification passed")
	assert.Contains(t, buf.String(), "segment-checksum")
}

func TestVerifyCmd_FailingReportReturnsError(t *testing.T) {
	cleanup := setupTestService(&mockMemoryService{
		report: domain.VerifyReport{
			Status: domain.VerifyFailed,
			Checks: []domain.VerifyCheck{
				{Name: "segment-checksum", Target: "segment-1", Passed: false, Detail: "checksum mismatch"},
			},
		},
	})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"verify"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, buf.String(), "FAILED")
	assert.Contains(t, buf.String(), "checksum mismatch")
}

func TestStatsCmd_PrintsCounters(t *testing.T) {
	cleanup := setupTestService(&mockMemoryService{
		stats: domain.Stats{
			ChunkCount:   3,
			FrameCount:   7,
			SegmentCount: 2,
			HasLexIndex:  true,
		},
	})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"stats"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Chunks:     3")
	assert.Contains(t, buf.String(), "Frames:     7")
	assert.Contains(t, buf.String(), "lexical=yes")
}
