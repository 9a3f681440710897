package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

func TestIngestCmd_Use(t *testing.T) {
	assert.Equal(t, "ingest [path]", ingestCmd.Use)
}

func TestIngestCmd_PrintsReceipt(t *testing.T) {
	cleanup := setupTestService(&mockMemoryService{
		receipt: domain.IngestReceipt{
			ChunkIDs:     []string{"chunk-1", "chunk-2"},
			FrameSeqs:    []domain.FrameSeq{1, 2, 3},
			Profile:      "h264",
			SegmentBytes: 4096,
		},
	})
	defer cleanup()

	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("some note text"), 0o644))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ingest", path})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Ingested 2 chunks into 3 frames")
	assert.Contains(t, buf.String(), "h264")
}

func TestIngestCmd_MissingFile(t *testing.T) {
	cleanup := setupTestService(&mockMemoryService{})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", filepath.Join(t.TempDir(), "missing.txt")})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
}

func TestIngestCmd_ReadOnlyError(t *testing.T) {
	cleanup := setupTestService(&mockMemoryService{
		err: domain.ErrReadOnly,
	})
	defer cleanup()

	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", path})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ingest failed")
}

func TestReadIngestInput_FileURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# heading"), 0o644))

	text, uri, err := readIngestInput([]string{path})

	require.NoError(t, err)
	assert.Equal(t, "# heading", text)
	assert.Equal(t, "file://"+path, uri)
}
