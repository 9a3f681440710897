package domain

import "time"

// Chunk is the unit of ingestion and retrieval: an immutable text segment.
// Chunks are never edited in place; re-ingesting produces a new chunk with
// a new identifier that supersedes the old one.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// URI is the originating document location (file path, URL, etc).
	URI string

	// Title is the human-readable title of the originating document.
	Title string

	// Text is the chunk content.
	Text string

	// Tags contains free-form key-value metadata.
	Tags map[string]string

	// Length is the chunk byte length.
	Length int

	// Offset is the chunk's start offset within the source document.
	Offset int

	// Overlap is the number of bytes shared with the preceding chunk of
	// the same source document.
	Overlap int

	// CreatedAt is when the chunk was ingested.
	CreatedAt time.Time
}

// FrameSeq identifies one optical frame. Sequence indices are assigned
// monotonically and never reused.
type FrameSeq uint64

// Frame describes one optical-code raster image holding one chunk shard.
// Frames are immutable once packed.
type Frame struct {
	// Seq is the monotonically increasing frame sequence index.
	Seq FrameSeq

	// ChunkID is the chunk this frame belongs to. Every frame belongs to
	// exactly one chunk.
	ChunkID string

	// ShardIndex and ShardCount place this frame within a multi-frame
	// chunk. Single-frame chunks have ShardIndex 0 and ShardCount 1.
	ShardIndex int
	ShardCount int

	// Timestamp is when the frame was packed.
	Timestamp time.Time
}

// IngestOptions carries per-ingestion metadata.
type IngestOptions struct {
	// URI is the source document location. Optional; a synthetic URI is
	// minted when empty.
	URI string

	// Title overrides the title inferred from the URI.
	Title string

	// Tags are attached to every chunk produced by this ingestion.
	Tags map[string]string

	// Supersedes lists chunk IDs replaced by this ingestion. They are
	// tombstoned, never physically removed.
	Supersedes []string
}

// IngestReceipt reports what an ingestion call produced.
type IngestReceipt struct {
	// ChunkIDs are the identifiers of the chunks created, in order.
	ChunkIDs []string

	// FrameSeqs are the sequence indices of the frames packed.
	FrameSeqs []FrameSeq

	// Profile is the codec profile the segment was packed with. It may
	// differ from the requested profile after fallback.
	Profile string

	// SegmentBytes is the compressed size of the packed segment.
	SegmentBytes int64
}
