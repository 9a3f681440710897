package store

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
)

// Each WAL record header: [seq u64][len u32][reserved 4 bytes][sha256 32].
const walEntryHeaderSize = 48

// Checkpoint policy: checkpoint when the region is half full or after a
// fixed number of appends, whichever comes first.
const (
	walCheckpointThreshold = 0.5
	walCheckpointPeriod    = 64
)

// WALStats reports the state of the embedded WAL region.
type WALStats struct {
	RegionSize             uint64
	PendingBytes           uint64
	AppendsSinceCheckpoint uint64
	Sequence               uint64
}

// WALRecord is one recovered intent record.
type WALRecord struct {
	Sequence uint64
	Payload  []byte
}

// WAL is the embedded ring write-ahead log. Intent records are appended
// before a segment's TOC entry is committed; replay at reopen verifies
// each intent against the corresponding bytes and discards torn writes.
type WAL struct {
	f            *os.File
	regionOffset uint64
	regionSize   uint64

	writeHead              uint64
	checkpointHead         uint64
	pendingBytes           uint64
	sequence               uint64
	checkpointSequence     uint64
	appendsSinceCheckpoint uint64
	readOnly               bool
}

func openWAL(f *os.File, h Header, readOnly bool) (*WAL, error) {
	entries, nextHead, err := scanWALRecords(f, h.WALOffset, h.WALSize)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		f:                  f,
		regionOffset:       h.WALOffset,
		regionSize:         h.WALSize,
		writeHead:          nextHead % h.WALSize,
		checkpointHead:     h.WALCheckpointPos % h.WALSize,
		checkpointSequence: h.WALSequence,
		sequence:           h.WALSequence,
		readOnly:           readOnly,
	}
	for _, e := range entries {
		if e.sequence > w.checkpointSequence {
			w.pendingBytes += e.totalSize
		}
		w.sequence = e.sequence
	}

	if !w.readOnly {
		if err := w.writeSentinel(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *WAL) assertWritable() error {
	if w.readOnly {
		return fmt.Errorf("wal is read-only; reopen memory with write access")
	}
	return nil
}

// Append writes one record and returns its sequence number. The record is
// synced before the caller proceeds to write segment data, so a crash
// between intent and commit is always detectable.
func (w *WAL) Append(payload []byte) (uint64, error) {
	if err := w.assertWritable(); err != nil {
		return 0, err
	}

	entrySize := uint64(walEntryHeaderSize + len(payload))
	if entrySize > w.regionSize {
		return 0, fmt.Errorf("embedded WAL region too small for %d byte entry", len(payload))
	}
	if w.pendingBytes+entrySize > w.regionSize {
		return 0, fmt.Errorf("embedded WAL region full")
	}

	if w.writeHead+entrySize > w.regionSize {
		// Wrapping over uncommitted records would lose intents.
		if w.pendingBytes > 0 {
			return 0, fmt.Errorf("embedded WAL region full")
		}
		w.writeHead = 0
	}

	next := w.sequence + 1
	if err := w.writeRecord(w.writeHead, next, payload); err != nil {
		return 0, err
	}

	w.writeHead = (w.writeHead + entrySize) % w.regionSize
	w.pendingBytes += entrySize
	w.sequence = next
	w.appendsSinceCheckpoint++

	if err := w.writeSentinel(); err != nil {
		return 0, err
	}
	if err := w.f.Sync(); err != nil {
		return 0, fmt.Errorf("sync wal: %w", err)
	}
	return w.sequence, nil
}

// ShouldCheckpoint reports whether the region is due for a checkpoint.
func (w *WAL) ShouldCheckpoint() bool {
	if w.readOnly || w.regionSize == 0 {
		return false
	}
	occupancy := float64(w.pendingBytes) / float64(w.regionSize)
	return occupancy >= walCheckpointThreshold ||
		w.appendsSinceCheckpoint >= walCheckpointPeriod
}

// RecordCheckpoint marks every current record as committed and stores the
// checkpoint position into the header (written by the caller).
func (w *WAL) RecordCheckpoint(h *Header) error {
	if err := w.assertWritable(); err != nil {
		return err
	}
	w.checkpointHead = w.writeHead
	w.pendingBytes = 0
	w.appendsSinceCheckpoint = 0
	w.checkpointSequence = w.sequence
	h.WALCheckpointPos = w.checkpointHead
	h.WALSequence = w.checkpointSequence
	return w.writeSentinel()
}

// Reset clears the region and re-appends the given payloads, renumbering
// them from the checkpoint sequence. Used after torn-write recovery drops
// intents whose data never made it to the file.
func (w *WAL) Reset(h *Header, payloads [][]byte) error {
	if err := w.assertWritable(); err != nil {
		return err
	}
	w.writeHead = 0
	w.checkpointHead = 0
	w.pendingBytes = 0
	w.appendsSinceCheckpoint = 0
	w.sequence = w.checkpointSequence
	h.WALCheckpointPos = 0
	if err := w.writeSentinel(); err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := w.Append(p); err != nil {
			return err
		}
	}
	return nil
}

// PendingRecords returns the records appended after the last checkpoint.
func (w *WAL) PendingRecords() ([]WALRecord, error) {
	return w.RecordsAfter(w.checkpointSequence)
}

// RecordsAfter rescans the region and returns records newer than seq.
func (w *WAL) RecordsAfter(seq uint64) ([]WALRecord, error) {
	entries, nextHead, err := scanWALRecords(w.f, w.regionOffset, w.regionSize)
	if err != nil {
		return nil, err
	}

	w.writeHead = nextHead % w.regionSize
	w.pendingBytes = 0
	for _, e := range entries {
		if e.sequence > w.checkpointSequence {
			w.pendingBytes += e.totalSize
		}
		w.sequence = e.sequence
	}

	var out []WALRecord
	for _, e := range entries {
		if e.sequence > seq {
			out = append(out, WALRecord{Sequence: e.sequence, Payload: e.payload})
		}
	}
	return out, nil
}

// Stats returns region occupancy counters.
func (w *WAL) Stats() WALStats {
	return WALStats{
		RegionSize:             w.regionSize,
		PendingBytes:           w.pendingBytes,
		AppendsSinceCheckpoint: w.appendsSinceCheckpoint,
		Sequence:               w.sequence,
	}
}

func (w *WAL) writeRecord(position, sequence uint64, payload []byte) error {
	digest := sha256.Sum256(payload)
	header := make([]byte, walEntryHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], sequence)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	copy(header[16:48], digest[:])

	// Single write of header+payload so a crash mid-record cannot leave
	// a header pointing at stale bytes.
	combined := append(header, payload...)
	return w.writeAt(position, combined)
}

// writeSentinel zeroes the next record header so scans stop at the end of
// valid entries. Skipped when no full header of free space remains; the
// scan then terminates at the region boundary instead.
func (w *WAL) writeSentinel() error {
	if w.readOnly || w.regionSize == 0 {
		return nil
	}
	if w.regionSize-w.pendingBytes < walEntryHeaderSize {
		return nil
	}
	pos := w.writeHead % w.regionSize
	remaining := w.regionSize - pos
	if remaining < walEntryHeaderSize {
		// Cannot wrap over pending records; the scan stops at the region
		// boundary instead.
		if w.pendingBytes > 0 {
			return nil
		}
		if remaining > 0 {
			if err := w.writeAt(pos, make([]byte, remaining)); err != nil {
				return err
			}
		}
		pos = 0
		w.writeHead = 0
	}
	return w.writeAt(pos, make([]byte, walEntryHeaderSize))
}

func (w *WAL) writeAt(position uint64, data []byte) error {
	abs := int64(w.regionOffset + position%w.regionSize)
	if _, err := w.f.WriteAt(data, abs); err != nil {
		return fmt.Errorf("write wal record: %w", err)
	}
	return nil
}

type scannedWALRecord struct {
	sequence  uint64
	payload   []byte
	totalSize uint64
}

func scanWALRecords(f *os.File, offset, size uint64) ([]scannedWALRecord, uint64, error) {
	var records []scannedWALRecord
	cursor := uint64(0)
	for cursor+walEntryHeaderSize <= size {
		header := make([]byte, walEntryHeaderSize)
		if _, err := f.ReadAt(header, int64(offset+cursor)); err != nil {
			return nil, 0, fmt.Errorf("scan wal at %d: %w", cursor, err)
		}

		sequence := binary.LittleEndian.Uint64(header[0:8])
		length := uint64(binary.LittleEndian.Uint32(header[8:12]))
		if sequence == 0 && length == 0 {
			break // sentinel
		}
		if length == 0 || cursor+walEntryHeaderSize+length > size {
			return nil, 0, fmt.Errorf("wal corruption at offset %d: record length invalid", cursor)
		}

		payload := make([]byte, length)
		if _, err := f.ReadAt(payload, int64(offset+cursor+walEntryHeaderSize)); err != nil {
			return nil, 0, fmt.Errorf("scan wal payload at %d: %w", cursor, err)
		}
		digest := sha256.Sum256(payload)
		if string(digest[:]) != string(header[16:48]) {
			return nil, 0, fmt.Errorf("wal corruption at offset %d: record checksum mismatch", cursor)
		}

		records = append(records, scannedWALRecord{
			sequence:  sequence,
			payload:   payload,
			totalSize: walEntryHeaderSize + length,
		})
		cursor += walEntryHeaderSize + length
	}
	return records, cursor, nil
}
