package domain

import "time"

// TimelineOptions configures a chronological listing of frames.
type TimelineOptions struct {
	// Limit caps the number of entries. Zero means no cap.
	Limit int

	// Reverse lists newest frames first.
	Reverse bool
}

// TimelineEntry is one frame in chronological order.
type TimelineEntry struct {
	Seq       FrameSeq
	ChunkID   string
	URI       string
	Timestamp time.Time

	// Preview is a short prefix of the chunk text, when decodable.
	Preview string
}

// Stats summarises the state of an open memory file.
type Stats struct {
	FrameCount    int
	ChunkCount    int
	SegmentCount  int
	TombstoneRate float64

	HasVecIndex  bool
	HasLexIndex  bool
	HasTimeIndex bool

	FileBytes       int64
	WALPendingBytes uint64
	WALSequence     uint64
}

// VerifyStatus is the overall outcome of a verification pass.
type VerifyStatus string

// Verification outcomes.
const (
	VerifyPassed VerifyStatus = "passed"
	VerifyFailed VerifyStatus = "failed"
)

// VerifyCheck is one verification finding.
type VerifyCheck struct {
	// Name identifies the check, e.g. "segment-checksum" or "toc-footer".
	Name string

	// Target is the entity checked (segment index, region name).
	Target string

	Passed bool
	Detail string
}

// VerifyReport aggregates verification checks over a memory file.
type VerifyReport struct {
	Status VerifyStatus
	Checks []VerifyCheck
}
