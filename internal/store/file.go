package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/logger"
)

// CreateOptions configures a new memory file.
type CreateOptions struct {
	// WALSize is the embedded WAL region size. Zero selects DefaultWALSize.
	WALSize uint64

	// CapacityBytes caps the file size. Zero means unbounded.
	CapacityBytes uint64

	// EmbeddingModel and EmbeddingDim pin the embedding identity for the
	// lifetime of the file. They may also be set later, before the first
	// ingest, via SetEmbedding.
	EmbeddingModel string
	EmbeddingDim   int
}

// Store is the single-file memory container. All mutation goes through
// one writer; reads of committed state are safe under the same mutex.
type Store struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	header   Header
	wal      *WAL
	toc      *TOC
	readOnly bool
	dirty    bool

	// appendEnd is the offset where the next segment or region lands.
	appendEnd int64
}

// Create initialises a new memory file at path. It fails if the file
// already exists.
func Create(path string, opts CreateOptions) (*Store, error) {
	walSize := opts.WALSize
	if walSize == 0 {
		walSize = DefaultWALSize
	}
	if walSize < walEntryHeaderSize*4 {
		return nil, fmt.Errorf("%w: wal size %d too small", domain.ErrInvalidConfiguration, walSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create memory file: %w", err)
	}

	h := Header{
		Version:       formatVersion,
		CapacityBytes: opts.CapacityBytes,
		WALOffset:     HeaderSize,
		WALSize:       walSize,
	}
	if err := writeHeader(f, h); err != nil {
		f.Close()
		return nil, err
	}
	// Zero the WAL region so the first scan hits a sentinel immediately.
	if _, err := f.WriteAt(make([]byte, walSize), HeaderSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("initialise wal region: %w", err)
	}

	wal, err := openWAL(f, h, false)
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &Store{
		f:         f,
		path:      path,
		header:    h,
		wal:       wal,
		toc:       newTOC(),
		appendEnd: int64(HeaderSize + walSize),
	}
	s.toc.EmbeddingModel = opts.EmbeddingModel
	s.toc.EmbeddingDim = opts.EmbeddingDim

	// Commit an empty TOC so the file is valid before the first ingest.
	if err := s.commitLocked(nil, nil, nil); err != nil {
		f.Close()
		return nil, err
	}
	logger.Info("created memory file %s (wal %d bytes)", path, walSize)
	return s, nil
}

// Open loads an existing memory file, replays the WAL and rolls back any
// torn writes left by a crash.
func Open(path string, readOnly bool) (*Store, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("open memory file: %w", err)
	}

	s, err := open(f, path, readOnly)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func open(f *os.File, path string, readOnly bool) (*Store, error) {
	h, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat memory file: %w", err)
	}
	fileSize := info.Size()
	dataStart := int64(h.WALOffset + h.WALSize)

	// Locate the last committed TOC. The header pointer is the fast path;
	// a backward scan recovers from a crash that tore the header update.
	toc := newTOC()
	validEnd := dataStart
	if h.FooterOffset >= uint64(dataStart) {
		if t, _, err := readFooterAt(f, int64(h.FooterOffset)); err == nil {
			toc = t
			validEnd = int64(h.FooterOffset) + footerSize
		} else {
			logger.Warn("header footer pointer invalid, scanning for last committed state: %v", err)
			if t, off, ok := findLastValidFooter(f, fileSize, dataStart); ok {
				toc = t
				validEnd = off + footerSize
			}
		}
	} else if t, off, ok := findLastValidFooter(f, fileSize, dataStart); ok {
		toc = t
		validEnd = off + footerSize
	}

	wal, err := openWAL(f, h, readOnly)
	if err != nil {
		return nil, err
	}

	s := &Store{
		f:         f,
		path:      path,
		header:    h,
		wal:       wal,
		toc:       toc,
		readOnly:  readOnly,
		appendEnd: validEnd,
	}

	// Replay post-checkpoint intents: each verified intent restores one
	// appended-but-uncommitted segment. The first intent whose data bytes
	// are missing or damaged marks a torn write; it and everything after
	// it are discarded.
	pending, err := wal.PendingRecords()
	if err != nil {
		return nil, err
	}
	var kept [][]byte
	torn := false
	for _, rec := range pending {
		intent, ok := parseSegmentIntent(rec.Payload)
		if !ok {
			logger.Warn("discarding unparseable wal record %d", rec.Sequence)
			torn = true
			break
		}
		if err := verifyIntentData(f, intent, fileSize); err != nil {
			logger.Warn("torn write detected at offset %d: %v", intent.Offset, err)
			torn = true
			break
		}
		s.applyRecord(intent.Meta)
		s.appendEnd = int64(intent.Offset + intent.Length)
		s.dirty = true
		kept = append(kept, rec.Payload)
	}

	if !readOnly {
		if torn {
			if err := wal.Reset(&s.header, kept); err != nil {
				return nil, err
			}
			if err := writeHeader(f, s.header); err != nil {
				return nil, err
			}
		}
		if s.appendEnd < fileSize {
			logger.Info("truncating %d uncommitted bytes", fileSize-s.appendEnd)
			if err := f.Truncate(s.appendEnd); err != nil {
				return nil, fmt.Errorf("truncate torn tail: %w", err)
			}
		}
		if torn || s.appendEnd < fileSize {
			if err := f.Sync(); err != nil {
				return nil, fmt.Errorf("sync after recovery: %w", err)
			}
		}
	}
	return s, nil
}

func verifyIntentData(f *os.File, intent segmentIntent, fileSize int64) error {
	end := int64(intent.Offset + intent.Length)
	if end > fileSize {
		return fmt.Errorf("%w: segment extends past end of file", domain.ErrTornWrite)
	}
	data := make([]byte, intent.Length)
	if _, err := f.ReadAt(data, int64(intent.Offset)); err != nil {
		return fmt.Errorf("%w: read segment data: %v", domain.ErrTornWrite, err)
	}
	if sha256.Sum256(data) != intent.Checksum {
		return fmt.Errorf("%w: segment checksum mismatch", domain.ErrTornWrite)
	}
	return nil
}

// applyRecord merges one replayed segment record into the TOC view.
func (s *Store) applyRecord(rec segmentRecord) {
	s.toc.Segments = append(s.toc.Segments, rec.Segment)
	s.toc.Frames = append(s.toc.Frames, rec.Frames...)
	s.toc.Chunks = append(s.toc.Chunks, rec.Chunks...)
	for _, id := range rec.Tombstones {
		s.tombstoneLocked(id)
	}
	if rec.Segment.ID >= s.toc.NextSegmentID {
		s.toc.NextSegmentID = rec.Segment.ID + 1
	}
	for _, fr := range rec.Frames {
		if fr.Seq >= s.toc.NextFrameSeq {
			s.toc.NextFrameSeq = fr.Seq + 1
		}
	}
}

func (s *Store) tombstoneLocked(chunkID string) {
	for i := range s.toc.Chunks {
		if s.toc.Chunks[i].ID == chunkID {
			s.toc.Chunks[i].Tombstoned = true
		}
	}
}

// AppendSegment durably appends one packed segment. Frame sequence
// indices and the segment ID are assigned here, under the writer lock,
// so they ascend in append order. Chunk FrameSeqs are filled in from the
// assigned sequences. The WAL intent is synced before the data bytes are
// written, so a crash at any point is recoverable.
func (s *Store) AppendSegment(data []byte, profile string, frames []FrameMeta, chunks []ChunkMeta, tombstones []string) (segID uint64, seqs []uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return 0, nil, domain.ErrReadOnly
	}
	if len(data) == 0 || len(frames) == 0 {
		return 0, nil, fmt.Errorf("empty segment")
	}

	offset := s.appendEnd
	if s.header.CapacityBytes > 0 && uint64(offset)+uint64(len(data)) > s.header.CapacityBytes {
		return 0, nil, fmt.Errorf("memory file capacity %d bytes exceeded", s.header.CapacityBytes)
	}

	segID = s.toc.NextSegmentID
	seqs = make([]uint64, len(frames))
	byChunk := make(map[string][]uint64)
	for i := range frames {
		frames[i].Seq = s.toc.NextFrameSeq + uint64(i)
		frames[i].SegmentID = segID
		frames[i].IndexInSegment = i
		seqs[i] = frames[i].Seq
		byChunk[frames[i].ChunkID] = append(byChunk[frames[i].ChunkID], frames[i].Seq)
	}
	for i := range chunks {
		chunks[i].FrameSeqs = byChunk[chunks[i].ID]
	}

	digest := sha256.Sum256(data)
	seg := SegmentMeta{
		ID:         segID,
		Profile:    profile,
		Offset:     offset,
		Length:     int64(len(data)),
		Checksum:   hex.EncodeToString(digest[:]),
		FrameCount: len(frames),
		CreatedAt:  time.Now().UTC(),
	}

	intent := segmentIntent{
		Offset:   uint64(offset),
		Length:   uint64(len(data)),
		Checksum: digest,
		Meta: segmentRecord{
			Segment:    seg,
			Frames:     frames,
			Chunks:     chunks,
			Tombstones: tombstones,
		},
	}
	payload, err := intent.marshal()
	if err != nil {
		return 0, nil, err
	}
	if _, err := s.wal.Append(payload); err != nil {
		return 0, nil, err
	}

	if _, err := s.f.WriteAt(data, offset); err != nil {
		return 0, nil, fmt.Errorf("write segment: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return 0, nil, fmt.Errorf("sync segment: %w", err)
	}

	s.applyRecord(intent.Meta)
	s.appendEnd = offset + int64(len(data))
	s.dirty = true
	logger.Debug("appended segment %d: %d frames, %d bytes at offset %d", segID, len(frames), len(data), offset)
	return segID, seqs, nil
}

// ReadSegment returns the packed bytes of one committed segment, verified
// against the stored checksum.
func (s *Store) ReadSegment(id uint64) ([]byte, error) {
	s.mu.Lock()
	seg, ok := s.segmentLocked(id)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: segment %d", domain.ErrNotFound, id)
	}

	data := make([]byte, seg.Length)
	if _, err := s.f.ReadAt(data, seg.Offset); err != nil {
		return nil, fmt.Errorf("read segment %d: %w", id, err)
	}
	digest := sha256.Sum256(data)
	if hex.EncodeToString(digest[:]) != seg.Checksum {
		return nil, fmt.Errorf("%w: segment %d", domain.ErrChecksumMismatch, id)
	}
	return data, nil
}

func (s *Store) segmentLocked(id uint64) (SegmentMeta, bool) {
	for _, seg := range s.toc.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return SegmentMeta{}, false
}

// FrameLocation resolves a frame sequence to its segment and position.
func (s *Store) FrameLocation(seq uint64) (SegmentMeta, FrameMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fr := range s.toc.Frames {
		if fr.Seq == seq {
			seg, ok := s.segmentLocked(fr.SegmentID)
			if !ok {
				return SegmentMeta{}, FrameMeta{}, fmt.Errorf("%w: segment %d for frame %d", domain.ErrNotFound, fr.SegmentID, seq)
			}
			return seg, fr, nil
		}
	}
	return SegmentMeta{}, FrameMeta{}, fmt.Errorf("%w: frame %d", domain.ErrNotFound, seq)
}

// Chunk returns the metadata for one chunk ID.
func (s *Store) Chunk(id string) (ChunkMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.toc.Chunks {
		if c.ID == id {
			return c, nil
		}
	}
	return ChunkMeta{}, fmt.Errorf("%w: chunk %s", domain.ErrNotFound, id)
}

// Chunks returns a copy of all chunk metadata, including tombstoned
// chunks, in ingestion order.
func (s *Store) Chunks() []ChunkMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChunkMeta, len(s.toc.Chunks))
	copy(out, s.toc.Chunks)
	return out
}

// Frames returns a copy of all frame metadata in sequence order.
func (s *Store) Frames() []FrameMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FrameMeta, len(s.toc.Frames))
	copy(out, s.toc.Frames)
	return out
}

// Segments returns a copy of all segment metadata in append order.
func (s *Store) Segments() []SegmentMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SegmentMeta, len(s.toc.Segments))
	copy(out, s.toc.Segments)
	return out
}

// Embedding returns the pinned embedding model identity.
func (s *Store) Embedding() (model string, dim int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toc.EmbeddingModel, s.toc.EmbeddingDim
}

// SetEmbedding pins the embedding identity. It fails once chunks exist
// under a different identity.
func (s *Store) SetEmbedding(model string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return domain.ErrReadOnly
	}
	if s.toc.EmbeddingModel != "" && (s.toc.EmbeddingModel != model || s.toc.EmbeddingDim != dim) {
		if len(s.toc.Chunks) > 0 {
			return fmt.Errorf("%w: memory file is bound to embedding %s/%d",
				domain.ErrInvalidConfiguration, s.toc.EmbeddingModel, s.toc.EmbeddingDim)
		}
	}
	s.toc.EmbeddingModel = model
	s.toc.EmbeddingDim = dim
	s.dirty = true
	return nil
}

// ShouldCheckpoint reports whether the WAL occupancy or append count
// has crossed the checkpoint policy thresholds.
func (s *Store) ShouldCheckpoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.ShouldCheckpoint()
}

// NeedsCommit reports whether uncommitted state exists.
func (s *Store) NeedsCommit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty || s.wal.ShouldCheckpoint()
}

// Commit folds all appended state into a new TOC, writes the index
// region artifacts and the footer, and checkpoints the WAL. lex, vec and
// timeIdx may be nil to drop the corresponding region.
func (s *Store) Commit(lex, vec, timeIdx []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return domain.ErrReadOnly
	}
	return s.commitLocked(lex, vec, timeIdx)
}

func (s *Store) commitLocked(lex, vec, timeIdx []byte) error {
	offset := s.appendEnd

	writeRegion := func(name string, data []byte) (*Region, error) {
		if data == nil {
			return nil, nil
		}
		if _, err := s.f.WriteAt(data, offset); err != nil {
			return nil, fmt.Errorf("write %s region: %w", name, err)
		}
		digest := sha256.Sum256(data)
		r := &Region{
			Offset:   offset,
			Length:   int64(len(data)),
			Checksum: hex.EncodeToString(digest[:]),
		}
		offset += int64(len(data))
		return r, nil
	}

	var err error
	if s.toc.Lex, err = writeRegion("lex", lex); err != nil {
		return err
	}
	if s.toc.Vec, err = writeRegion("vec", vec); err != nil {
		return err
	}
	if s.toc.Time, err = writeRegion("time", timeIdx); err != nil {
		return err
	}

	tocBytes, err := s.toc.marshal()
	if err != nil {
		return err
	}
	trailerOffset, err := writeFooter(s.f, offset, tocBytes)
	if err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync commit: %w", err)
	}

	// Data and footer are durable. Point the header at the new footer and
	// checkpoint the WAL; a crash before this lands recovers via the
	// backward footer scan.
	s.header.FooterOffset = uint64(trailerOffset)
	if err := s.wal.RecordCheckpoint(&s.header); err != nil {
		return err
	}
	if err := writeHeader(s.f, s.header); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync header: %w", err)
	}

	s.appendEnd = trailerOffset + footerSize
	s.dirty = false
	logger.Debug("committed: %d segments, %d frames, footer at %d", len(s.toc.Segments), len(s.toc.Frames), trailerOffset)
	return nil
}

// LoadRegion reads and verifies one committed index region. A nil region
// pointer yields nil bytes.
func (s *Store) LoadRegion(r *Region) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data := make([]byte, r.Length)
	if _, err := s.f.ReadAt(data, r.Offset); err != nil {
		return nil, fmt.Errorf("read index region: %w", err)
	}
	digest := sha256.Sum256(data)
	if hex.EncodeToString(digest[:]) != r.Checksum {
		return nil, fmt.Errorf("%w: index region at offset %d", domain.ErrChecksumMismatch, r.Offset)
	}
	return data, nil
}

// Regions returns the committed index region descriptors.
func (s *Store) Regions() (lex, vec, timeIdx *Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toc.Lex, s.toc.Vec, s.toc.Time
}

// Stats reports container-level counters.
func (s *Store) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	tombstoned := 0
	for _, c := range s.toc.Chunks {
		if c.Tombstoned {
			tombstoned++
		}
	}
	rate := 0.0
	if len(s.toc.Chunks) > 0 {
		rate = float64(tombstoned) / float64(len(s.toc.Chunks))
	}

	var fileBytes int64
	if info, err := s.f.Stat(); err == nil {
		fileBytes = info.Size()
	}
	walStats := s.wal.Stats()
	return domain.Stats{
		FrameCount:      len(s.toc.Frames),
		ChunkCount:      len(s.toc.Chunks),
		SegmentCount:    len(s.toc.Segments),
		TombstoneRate:   rate,
		HasVecIndex:     s.toc.Vec != nil,
		HasLexIndex:     s.toc.Lex != nil,
		HasTimeIndex:    s.toc.Time != nil,
		FileBytes:       fileBytes,
		WALPendingBytes: walStats.PendingBytes,
		WALSequence:     walStats.Sequence,
	}
}

// Verify checks every committed structure: footer and TOC integrity,
// segment checksums and index region checksums. Optical-level decoding
// is layered on top by the caller.
func (s *Store) Verify() []domain.VerifyCheck {
	s.mu.Lock()
	segments := make([]SegmentMeta, len(s.toc.Segments))
	copy(segments, s.toc.Segments)
	lex, vec, timeIdx := s.toc.Lex, s.toc.Vec, s.toc.Time
	footerOffset := s.header.FooterOffset
	s.mu.Unlock()

	var checks []domain.VerifyCheck
	add := func(name, target string, err error) {
		c := domain.VerifyCheck{Name: name, Target: target, Passed: err == nil}
		if err != nil {
			c.Detail = err.Error()
		}
		checks = append(checks, c)
	}

	var footerErr error
	if footerOffset == 0 {
		footerErr = errors.New("no committed footer")
	} else if _, _, err := readFooterAt(s.f, int64(footerOffset)); err != nil {
		footerErr = err
	}
	add("toc-footer", "footer", footerErr)

	for _, seg := range segments {
		_, err := s.ReadSegment(seg.ID)
		add("segment-checksum", fmt.Sprintf("segment %d", seg.ID), err)
	}

	regions := []struct {
		name string
		r    *Region
	}{{"lex", lex}, {"vec", vec}, {"time", timeIdx}}
	for _, reg := range regions {
		if reg.r == nil {
			continue
		}
		_, err := s.LoadRegion(reg.r)
		add("region-checksum", reg.name, err)
	}
	return checks
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// ReadOnly reports whether the store was opened read-only.
func (s *Store) ReadOnly() bool { return s.readOnly }

// Close syncs and closes the backing file. Uncommitted appends remain
// recoverable through the WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	if !s.readOnly {
		if err := s.f.Sync(); err != nil {
			s.f.Close()
			s.f = nil
			return fmt.Errorf("sync on close: %w", err)
		}
	}
	err := s.f.Close()
	s.f = nil
	return err
}
