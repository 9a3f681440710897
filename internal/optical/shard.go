// Package optical renders chunk payloads as scannable 2-D code images and
// recovers them from raster frames. Encoding is deterministic: identical
// input and parameters always yield byte-identical images, which is what
// makes partial segment writes detectable and re-doable after a crash.
package optical

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// Frame payload envelope: magic | version | level | shard index | shard
// count | chunk id | payload length | payload crc32 | payload bytes.
const (
	envelopeMagic   = "MVFR"
	envelopeVersion = 1

	// envelopeHeaderSize is the fixed byte size of the envelope header.
	envelopeHeaderSize = 4 + 1 + 1 + 2 + 2 + 16 + 4 + 4
)

// Shard is one chunk fragment carried by a single optical frame.
type Shard struct {
	ChunkID    string
	Index      int
	Count      int
	Redundancy RedundancyLevel
	Payload    []byte
}

// MarshalShard serialises a shard into its frame envelope.
func MarshalShard(s Shard) ([]byte, error) {
	id, err := uuid.Parse(s.ChunkID)
	if err != nil {
		return nil, fmt.Errorf("parse chunk id: %w", err)
	}
	if s.Count <= 0 || s.Index < 0 || s.Index >= s.Count {
		return nil, fmt.Errorf("shard %d/%d out of range", s.Index, s.Count)
	}

	buf := make([]byte, envelopeHeaderSize+len(s.Payload))
	copy(buf[0:4], envelopeMagic)
	buf[4] = envelopeVersion
	buf[5] = byte(s.Redundancy)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(s.Index))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(s.Count))
	copy(buf[10:26], id[:])
	binary.LittleEndian.PutUint32(buf[26:30], uint32(len(s.Payload)))
	binary.LittleEndian.PutUint32(buf[30:34], crc32.ChecksumIEEE(s.Payload))
	copy(buf[envelopeHeaderSize:], s.Payload)
	return buf, nil
}

// UnmarshalShard parses a frame envelope and verifies the payload checksum.
// A malformed envelope is reported as unscannable; a checksum failure is a
// distinct condition because the code itself scanned cleanly.
func UnmarshalShard(data []byte) (Shard, error) {
	if len(data) < envelopeHeaderSize || string(data[0:4]) != envelopeMagic {
		return Shard{}, fmt.Errorf("%w: missing frame envelope", domain.ErrUnscannable)
	}
	if data[4] != envelopeVersion {
		return Shard{}, fmt.Errorf("%w: unsupported envelope version %d",
			domain.ErrUnscannable, data[4])
	}

	payloadLen := binary.LittleEndian.Uint32(data[26:30])
	if int(payloadLen) != len(data)-envelopeHeaderSize {
		return Shard{}, fmt.Errorf("%w: payload length %d does not match envelope",
			domain.ErrUnscannable, payloadLen)
	}

	payload := data[envelopeHeaderSize:]
	want := binary.LittleEndian.Uint32(data[30:34])
	if got := crc32.ChecksumIEEE(payload); got != want {
		return Shard{}, fmt.Errorf("%w: crc %08x, want %08x",
			domain.ErrChecksumMismatch, got, want)
	}

	var id uuid.UUID
	copy(id[:], data[10:26])

	return Shard{
		ChunkID:    id.String(),
		Index:      int(binary.LittleEndian.Uint16(data[6:8])),
		Count:      int(binary.LittleEndian.Uint16(data[8:10])),
		Redundancy: RedundancyLevel(data[5]),
		Payload:    payload,
	}, nil
}

// SplitPayload cuts a chunk payload into shards that each fit one optical
// code at the given redundancy level. Splits are by byte count: word
// boundaries are the chunker's concern, shard splits are pure transport
// framing.
func SplitPayload(chunkID string, payload []byte, level RedundancyLevel) ([]Shard, error) {
	max := MaxPayload(level)
	if max <= 0 {
		return nil, fmt.Errorf("%w: unknown redundancy level %d",
			domain.ErrInvalidConfiguration, level)
	}

	count := (len(payload) + max - 1) / max
	if count == 0 {
		count = 1
	}

	shards := make([]Shard, 0, count)
	for i := 0; i < count; i++ {
		start := i * max
		end := start + max
		if end > len(payload) {
			end = len(payload)
		}
		shards = append(shards, Shard{
			ChunkID:    chunkID,
			Index:      i,
			Count:      count,
			Redundancy: level,
			Payload:    payload[start:end],
		})
	}
	return shards, nil
}

// Reassemble stitches decoded shards back into the chunk payload. Shards
// may arrive in any order but must all belong to the same chunk.
func Reassemble(shards []Shard) ([]byte, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("%w: no shards", domain.ErrNotFound)
	}

	count := shards[0].Count
	chunkID := shards[0].ChunkID
	ordered := make([][]byte, count)
	for _, s := range shards {
		if s.ChunkID != chunkID {
			return nil, fmt.Errorf("shard chunk %s does not match %s", s.ChunkID, chunkID)
		}
		if s.Count != count || s.Index < 0 || s.Index >= count {
			return nil, fmt.Errorf("shard %d/%d inconsistent with count %d", s.Index, s.Count, count)
		}
		ordered[s.Index] = s.Payload
	}

	var out []byte
	for i, part := range ordered {
		if part == nil {
			return nil, fmt.Errorf("%w: shard %d of %d missing", domain.ErrNotFound, i, count)
		}
		out = append(out, part...)
	}
	return out, nil
}
