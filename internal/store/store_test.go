package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

func createTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.mv")
	s, err := Create(path, CreateOptions{WALSize: 16 << 10})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func appendTestSegment(t *testing.T, s *Store, data []byte, chunkID string) (uint64, []uint64) {
	t.Helper()
	now := time.Now().UTC()
	segID, seqs, err := s.AppendSegment(data, "mp4v",
		[]FrameMeta{{ChunkID: chunkID, ShardIndex: 0, ShardCount: 1, Timestamp: now}},
		[]ChunkMeta{{ID: chunkID, URI: "note://test", Length: len(data), CreatedAt: now}},
		nil)
	require.NoError(t, err)
	return segID, seqs
}

func TestCreateAndReopenEmpty(t *testing.T) {
	s, path := createTestStore(t)
	require.NoError(t, s.Close())

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	stats := reopened.Stats()
	assert.Zero(t, stats.ChunkCount)
	assert.Zero(t, stats.SegmentCount)
}

func TestAppendCommitReopen(t *testing.T) {
	s, path := createTestStore(t)

	data := []byte("packed segment bytes")
	segID, seqs := appendTestSegment(t, s, data, "chunk-1")
	assert.Equal(t, uint64(1), segID)
	assert.Equal(t, []uint64{1}, seqs)

	require.NoError(t, s.Commit(nil, nil, nil))
	require.NoError(t, s.Close())

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ReadSegment(segID)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	chunk, err := reopened.Chunk("chunk-1")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, chunk.FrameSeqs)

	seg, frame, err := reopened.FrameLocation(1)
	require.NoError(t, err)
	assert.Equal(t, segID, seg.ID)
	assert.Equal(t, 0, frame.IndexInSegment)
}

func TestWALReplayRestoresUncommittedAppend(t *testing.T) {
	s, path := createTestStore(t)

	data := []byte("never committed")
	segID, _ := appendTestSegment(t, s, data, "chunk-1")
	// Close without Commit: no footer covers this segment.
	require.NoError(t, s.Close())

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ReadSegment(segID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 1, reopened.Stats().ChunkCount)
}

func TestTornWriteRolledBackOnReopen(t *testing.T) {
	s, path := createTestStore(t)

	appendTestSegment(t, s, []byte("this append will be torn"), "chunk-1")
	require.NoError(t, s.Close())

	// Chop the tail of the segment data, as a crash mid-write would.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-5))

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Zero(t, reopened.Stats().ChunkCount)
	assert.Zero(t, reopened.Stats().SegmentCount)

	// The file is writable again and sequence numbering is unharmed.
	segID, seqs := appendTestSegment(t, reopened, []byte("fresh"), "chunk-2")
	assert.Equal(t, uint64(1), segID)
	assert.Equal(t, []uint64{1}, seqs)
}

func TestTornWriteKeepsEarlierIntactAppend(t *testing.T) {
	s, path := createTestStore(t)

	appendTestSegment(t, s, []byte("intact"), "chunk-1")
	appendTestSegment(t, s, []byte("torn tail"), "chunk-2")
	require.NoError(t, s.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Stats().ChunkCount)
	_, err = reopened.Chunk("chunk-1")
	assert.NoError(t, err)
	_, err = reopened.Chunk("chunk-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReadSegmentChecksumMismatch(t *testing.T) {
	s, path := createTestStore(t)

	segID, _ := appendTestSegment(t, s, []byte("will be damaged"), "chunk-1")
	require.NoError(t, s.Commit(nil, nil, nil))
	seg := s.Segments()[0]
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x00}, seg.Offset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.ReadSegment(segID)
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
}

func TestTombstoneSupersession(t *testing.T) {
	s, _ := createTestStore(t)

	appendTestSegment(t, s, []byte("old version"), "chunk-old")

	now := time.Now().UTC()
	_, _, err := s.AppendSegment([]byte("new version"), "mp4v",
		[]FrameMeta{{ChunkID: "chunk-new", ShardCount: 1, Timestamp: now}},
		[]ChunkMeta{{ID: "chunk-new", CreatedAt: now}},
		[]string{"chunk-old"})
	require.NoError(t, err)

	old, err := s.Chunk("chunk-old")
	require.NoError(t, err)
	assert.True(t, old.Tombstoned)

	stats := s.Stats()
	assert.Equal(t, 2, stats.ChunkCount)
	assert.InDelta(t, 0.5, stats.TombstoneRate, 1e-9)
}

func TestCommitWritesIndexRegions(t *testing.T) {
	s, path := createTestStore(t)

	appendTestSegment(t, s, []byte("segment"), "chunk-1")

	lex := NewLexIndex()
	lex.Add("chunk-1", "the quick brown fox")
	lexBytes, err := lex.Marshal()
	require.NoError(t, err)

	ti := &TimeIndex{}
	ti.Add(1, time.Unix(1700000000, 0))

	require.NoError(t, s.Commit(lexBytes, []byte("vec artifact"), ti.Marshal()))
	require.NoError(t, s.Close())

	reopened, err := Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	lexRegion, vecRegion, timeRegion := reopened.Regions()
	require.NotNil(t, lexRegion)
	require.NotNil(t, vecRegion)
	require.NotNil(t, timeRegion)

	gotLex, err := reopened.LoadRegion(lexRegion)
	require.NoError(t, err)
	restored, err := UnmarshalLexIndex(gotLex)
	require.NoError(t, err)
	hits := restored.Search("quick fox", 5)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-1", hits[0].ChunkID)

	gotVec, err := reopened.LoadRegion(vecRegion)
	require.NoError(t, err)
	assert.Equal(t, []byte("vec artifact"), gotVec)

	gotTime, err := reopened.LoadRegion(timeRegion)
	require.NoError(t, err)
	restoredTime, err := UnmarshalTimeIndex(gotTime)
	require.NoError(t, err)
	ts, ok := restoredTime.At(1)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), ts.Unix())
}

func TestHeaderFooterRecoveryScan(t *testing.T) {
	s, path := createTestStore(t)

	appendTestSegment(t, s, []byte("committed data"), "chunk-1")
	require.NoError(t, s.Commit(nil, nil, nil))
	require.NoError(t, s.Close())

	// Damage the header's footer pointer; reopen must fall back to the
	// backward scan and still find the committed state.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, 48)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Stats().ChunkCount)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	s, path := createTestStore(t)
	require.NoError(t, s.Close())

	reopened, err := Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	_, _, err = reopened.AppendSegment([]byte("x"), "mp4v",
		[]FrameMeta{{ChunkID: "c"}}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrReadOnly)
	assert.ErrorIs(t, reopened.Commit(nil, nil, nil), domain.ErrReadOnly)
}

func TestSetEmbeddingPinned(t *testing.T) {
	s, _ := createTestStore(t)

	require.NoError(t, s.SetEmbedding("text-embedding-3-small", 1536))
	model, dim := s.Embedding()
	assert.Equal(t, "text-embedding-3-small", model)
	assert.Equal(t, 1536, dim)

	// Switching identity before any chunk exists is allowed.
	require.NoError(t, s.SetEmbedding("local-hash", 256))

	appendTestSegment(t, s, []byte("data"), "chunk-1")
	err := s.SetEmbedding("text-embedding-3-large", 3072)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestVerifyReportsDamage(t *testing.T) {
	s, path := createTestStore(t)

	appendTestSegment(t, s, []byte("verify me"), "chunk-1")
	require.NoError(t, s.Commit(nil, nil, nil))
	seg := s.Segments()[0]

	for _, c := range s.Verify() {
		assert.True(t, c.Passed, "check %s/%s failed: %s", c.Name, c.Target, c.Detail)
	}
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xAA}, seg.Offset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	failed := 0
	for _, c := range reopened.Verify() {
		if !c.Passed {
			failed++
			assert.Equal(t, "segment-checksum", c.Name)
		}
	}
	assert.Equal(t, 1, failed)
}
