package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// Region locates one index artifact inside the file.
type Region struct {
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
	Checksum string `json:"checksum"` // hex sha-256 of the artifact bytes
}

// SegmentMeta describes one committed packed frame-stream segment.
type SegmentMeta struct {
	ID         uint64    `json:"id"`
	Profile    string    `json:"profile"`
	Offset     int64     `json:"offset"`
	Length     int64     `json:"length"`
	Checksum   string    `json:"checksum"`
	FrameCount int       `json:"frame_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// FrameMeta locates one optical frame within its segment.
type FrameMeta struct {
	Seq            uint64    `json:"seq"`
	ChunkID        string    `json:"chunk_id"`
	SegmentID      uint64    `json:"segment_id"`
	IndexInSegment int       `json:"index_in_segment"`
	ShardIndex     int       `json:"shard_index"`
	ShardCount     int       `json:"shard_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// ChunkMeta carries chunk metadata; the chunk text itself lives only in
// the packed frames.
type ChunkMeta struct {
	ID         string            `json:"id"`
	URI        string            `json:"uri"`
	Title      string            `json:"title"`
	Tags       map[string]string `json:"tags,omitempty"`
	Length     int               `json:"length"`
	Offset     int               `json:"offset"`
	Overlap    int               `json:"overlap"`
	FrameSeqs  []uint64          `json:"frame_seqs"`
	CreatedAt  time.Time         `json:"created_at"`
	Tombstoned bool              `json:"tombstoned,omitempty"`
}

// TOC is the table of contents serialised ahead of every footer. It is
// the authoritative record of committed state; anything not reachable
// from the last valid TOC is discarded at reopen.
type TOC struct {
	NextFrameSeq  uint64 `json:"next_frame_seq"`
	NextSegmentID uint64 `json:"next_segment_id"`

	EmbeddingModel string `json:"embedding_model,omitempty"`
	EmbeddingDim   int    `json:"embedding_dim,omitempty"`

	Segments []SegmentMeta `json:"segments"`
	Frames   []FrameMeta   `json:"frames"`
	Chunks   []ChunkMeta   `json:"chunks"`

	Lex  *Region `json:"lex,omitempty"`
	Vec  *Region `json:"vec,omitempty"`
	Time *Region `json:"time,omitempty"`
}

func newTOC() *TOC {
	return &TOC{NextFrameSeq: 1, NextSegmentID: 1}
}

func (t *TOC) marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal toc: %w", err)
	}
	return data, nil
}

func unmarshalTOC(data []byte) (*TOC, error) {
	var t TOC
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal toc: %w", err)
	}
	return &t, nil
}

// Intent records written to the WAL before data hits the file.
const intentSegment byte = 1

const intentHeaderSize = 1 + 8 + 8 + 32

// segmentIntent is the pre-commit record for one segment append. The
// fixed prefix locates and checksums the data bytes; the JSON tail
// carries enough metadata to replay the append into the TOC at reopen
// without rewriting the footer on every put.
type segmentIntent struct {
	Offset   uint64
	Length   uint64
	Checksum [32]byte
	Meta     segmentRecord
}

// segmentRecord is the replayable metadata for one appended segment.
type segmentRecord struct {
	Segment    SegmentMeta `json:"segment"`
	Frames     []FrameMeta `json:"frames"`
	Chunks     []ChunkMeta `json:"chunks"`
	Tombstones []string    `json:"tombstones,omitempty"`
}

func (i segmentIntent) marshal() ([]byte, error) {
	meta, err := json.Marshal(i.Meta)
	if err != nil {
		return nil, fmt.Errorf("marshal segment intent: %w", err)
	}
	buf := make([]byte, intentHeaderSize, intentHeaderSize+len(meta))
	buf[0] = intentSegment
	binary.LittleEndian.PutUint64(buf[1:9], i.Offset)
	binary.LittleEndian.PutUint64(buf[9:17], i.Length)
	copy(buf[17:49], i.Checksum[:])
	return append(buf, meta...), nil
}

func parseSegmentIntent(payload []byte) (segmentIntent, bool) {
	if len(payload) < intentHeaderSize || payload[0] != intentSegment {
		return segmentIntent{}, false
	}
	var i segmentIntent
	i.Offset = binary.LittleEndian.Uint64(payload[1:9])
	i.Length = binary.LittleEndian.Uint64(payload[9:17])
	copy(i.Checksum[:], payload[17:49])
	if err := json.Unmarshal(payload[intentHeaderSize:], &i.Meta); err != nil {
		return segmentIntent{}, false
	}
	return i, true
}
