package store

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"
)

// TimeIndex maps frame sequence numbers to ingestion timestamps, kept in
// ascending sequence order. Serialised as fixed 16-byte entries of
// [seq u64][unix seconds i64] so range lookups stay cheap at any size.
type TimeIndex struct {
	entries []timeEntry
}

type timeEntry struct {
	seq  uint64
	unix int64
}

const timeEntrySize = 16

// Add records one frame's timestamp. Sequences must be added in
// ascending order, which the single-writer append path guarantees.
func (ix *TimeIndex) Add(seq uint64, ts time.Time) {
	ix.entries = append(ix.entries, timeEntry{seq: seq, unix: ts.Unix()})
}

// Len returns the number of indexed frames.
func (ix *TimeIndex) Len() int { return len(ix.entries) }

// At returns the timestamp recorded for seq.
func (ix *TimeIndex) At(seq uint64) (time.Time, bool) {
	i := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].seq >= seq
	})
	if i < len(ix.entries) && ix.entries[i].seq == seq {
		return time.Unix(ix.entries[i].unix, 0).UTC(), true
	}
	return time.Time{}, false
}

// Range calls fn for each entry with seq in [from, to], in order.
func (ix *TimeIndex) Range(from, to uint64, fn func(seq uint64, ts time.Time) bool) {
	i := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].seq >= from
	})
	for ; i < len(ix.entries) && ix.entries[i].seq <= to; i++ {
		if !fn(ix.entries[i].seq, time.Unix(ix.entries[i].unix, 0).UTC()) {
			return
		}
	}
}

// Marshal serialises the index for storage in an index region.
func (ix *TimeIndex) Marshal() []byte {
	buf := make([]byte, len(ix.entries)*timeEntrySize)
	for i, e := range ix.entries {
		off := i * timeEntrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], e.seq)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(e.unix))
	}
	return buf
}

// UnmarshalTimeIndex restores an index from its serialised region bytes.
func UnmarshalTimeIndex(data []byte) (*TimeIndex, error) {
	if len(data)%timeEntrySize != 0 {
		return nil, fmt.Errorf("time index length %d not a multiple of %d", len(data), timeEntrySize)
	}
	ix := &TimeIndex{entries: make([]timeEntry, len(data)/timeEntrySize)}
	for i := range ix.entries {
		off := i * timeEntrySize
		ix.entries[i].seq = binary.LittleEndian.Uint64(data[off : off+8])
		ix.entries[i].unix = int64(binary.LittleEndian.Uint64(data[off+8 : off+16]))
	}
	return ix, nil
}
