// Package services implements the core engine behind the driving ports:
// ingestion, retrieval, context assembly and file lifecycle. Services
// depend on driven ports and the engine packages, never on adapters.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/memvault/internal/cache"
	"github.com/custodia-labs/memvault/internal/chunker"
	"github.com/custodia-labs/memvault/internal/codec"
	"github.com/custodia-labs/memvault/internal/config"
	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/core/ports/driven"
	"github.com/custodia-labs/memvault/internal/core/ports/driving"
	"github.com/custodia-labs/memvault/internal/index"
	"github.com/custodia-labs/memvault/internal/logger"
	"github.com/custodia-labs/memvault/internal/optical"
	"github.com/custodia-labs/memvault/internal/store"
)

// Ensure Memory implements the driving port.
var _ driving.MemoryService = (*Memory)(nil)

// Memory is the engine over one open memory file.
type Memory struct {
	cfg       config.Config
	store     *store.Store
	packer    *codec.Packer
	decoder   *optical.Decoder
	chunker   *chunker.Chunker
	cache     *cache.Cache
	embedder  driven.EmbeddingService
	completer driven.CompletionService
	tokens    *tokenEstimator

	// mu guards the in-memory indexes and the conversation history.
	mu    sync.Mutex
	vec   index.Index
	lex   *store.LexIndex
	times *store.TimeIndex

	history []domain.Turn

	// writeMu serialises the pack-and-append section: frame sequence
	// numbers must ascend in append order.
	writeMu sync.Mutex
}

// NewMemory wires the engine over an opened store. embedder and
// completer are optional: without an embedder retrieval is lexical-only,
// without a completer Ask is unavailable.
func NewMemory(cfg config.Config, st *store.Store, packer *codec.Packer,
	embedder driven.EmbeddingService, completer driven.CompletionService) (*Memory, error) {

	ch, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}

	if embedder != nil {
		model, dim := st.Embedding()
		if model != "" && (model != embedder.ModelName() || dim != embedder.Dimensions()) {
			return nil, fmt.Errorf("%w: memory file is bound to embedding %s/%d, got %s/%d",
				domain.ErrInvalidConfiguration, model, dim, embedder.ModelName(), embedder.Dimensions())
		}
	}

	m := &Memory{
		cfg:       cfg,
		store:     st,
		packer:    packer,
		decoder:   optical.NewDecoder(),
		chunker:   ch,
		embedder:  embedder,
		completer: completer,
		tokens:    newTokenEstimator(cfg.LLM.Model),
	}

	m.cache, err = cache.New(cache.Options{
		Capacity:      cfg.Cache.Capacity,
		PrefetchDepth: cfg.Cache.PrefetchDepth,
		DecodeTimeout: time.Duration(cfg.Cache.DecodeTimeoutMS) * time.Millisecond,
	}, m.loadFrame)
	if err != nil {
		return nil, err
	}

	if err := m.loadIndexes(); err != nil {
		m.cache.Close()
		return nil, err
	}
	m.reindexUncommitted()
	return m, nil
}

// loadIndexes restores the lexical and vector indexes from their
// committed regions and rebuilds the chronological index from the TOC.
func (m *Memory) loadIndexes() error {
	lexRegion, vecRegion, _ := m.store.Regions()

	lexBytes, err := m.store.LoadRegion(lexRegion)
	if err != nil {
		return err
	}
	if lexBytes != nil {
		if m.lex, err = store.UnmarshalLexIndex(lexBytes); err != nil {
			return err
		}
	} else {
		m.lex = store.NewLexIndex()
	}

	vecBytes, err := m.store.LoadRegion(vecRegion)
	if err != nil {
		return err
	}
	if vecBytes != nil {
		if m.vec, err = index.Unmarshal(vecBytes); err != nil {
			return err
		}
	} else if m.cfg.Index.Kind == "partitioned" {
		if m.vec, err = index.NewPartitioned(m.cfg.Index.Partitions, m.cfg.Index.NProbe); err != nil {
			return err
		}
	} else {
		m.vec = index.NewExact()
	}

	// The chronological index is derivable from frame metadata, so it is
	// rebuilt rather than trusted from its region.
	m.times = &store.TimeIndex{}
	for _, fr := range m.store.Frames() {
		m.times.Add(fr.Seq, fr.Timestamp)
	}
	return nil
}

// reindexUncommitted re-adds chunks restored by WAL replay that never
// made it into the committed index regions. Failures degrade those
// chunks to unindexed rather than failing the open.
func (m *Memory) reindexUncommitted() {
	ctx := context.Background()
	for _, meta := range m.store.Chunks() {
		if meta.Tombstoned || m.lex.Has(meta.ID) {
			continue
		}
		chunk, err := m.hydrateChunk(ctx, meta)
		if err != nil {
			logger.Warn("reindex chunk %s: %v", meta.ID, err)
			continue
		}
		m.lex.Add(chunk.ID, chunk.Text)
		if m.embedder != nil {
			vec, err := m.embedder.Embed(ctx, chunk.Text)
			if err != nil {
				logger.Warn("reindex embedding for chunk %s: %v", meta.ID, err)
				continue
			}
			if err := m.vec.Add(chunk.ID, vec); err != nil {
				logger.Warn("reindex chunk %s: %v", meta.ID, err)
			}
		}
	}
}

// loadFrame is the cache loader: locate the frame, decode it out of its
// segment and recover the shard payload.
func (m *Memory) loadFrame(ctx context.Context, seq uint64) ([]byte, error) {
	seg, frame, err := m.store.FrameLocation(seq)
	if err != nil {
		return nil, err
	}
	data, err := m.store.ReadSegment(seg.ID)
	if err != nil {
		return nil, err
	}
	img, err := m.packer.Unpack(ctx, data, frame.IndexInSegment, seg.Profile)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", seq, err)
	}
	shard, err := m.decoder.DecodeImage(img)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", seq, err)
	}
	if shard.ChunkID != frame.ChunkID {
		return nil, fmt.Errorf("%w: frame %d decoded chunk %s, TOC says %s",
			domain.ErrUnscannable, seq, shard.ChunkID, frame.ChunkID)
	}
	return shard.Payload, nil
}

// hydrateChunk reads all of a chunk's frames through the cache and
// reassembles the chunk text.
func (m *Memory) hydrateChunk(ctx context.Context, meta store.ChunkMeta) (domain.Chunk, error) {
	var text []byte
	for _, seq := range meta.FrameSeqs {
		payload, err := m.cache.Get(ctx, seq)
		if err != nil {
			return domain.Chunk{}, err
		}
		text = append(text, payload...)
	}
	return domain.Chunk{
		ID:        meta.ID,
		URI:       meta.URI,
		Title:     meta.Title,
		Text:      string(text),
		Tags:      meta.Tags,
		Length:    meta.Length,
		Offset:    meta.Offset,
		Overlap:   meta.Overlap,
		CreatedAt: meta.CreatedAt,
	}, nil
}

// Timeline lists frames in chronological order.
func (m *Memory) Timeline(ctx context.Context, opts domain.TimelineOptions) ([]domain.TimelineEntry, error) {
	frames := m.store.Frames()
	chunks := make(map[string]store.ChunkMeta)
	for _, c := range m.store.Chunks() {
		chunks[c.ID] = c
	}

	if opts.Reverse {
		for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
			frames[i], frames[j] = frames[j], frames[i]
		}
	}
	if opts.Limit > 0 && len(frames) > opts.Limit {
		frames = frames[:opts.Limit]
	}

	m.mu.Lock()
	times := m.times
	m.mu.Unlock()

	entries := make([]domain.TimelineEntry, 0, len(frames))
	for _, fr := range frames {
		entry := domain.TimelineEntry{
			Seq:       domain.FrameSeq(fr.Seq),
			ChunkID:   fr.ChunkID,
			Timestamp: fr.Timestamp,
		}
		if ts, ok := times.At(fr.Seq); ok {
			entry.Timestamp = ts
		}
		if c, ok := chunks[fr.ChunkID]; ok {
			entry.URI = c.URI
		}
		if payload, err := m.cache.Get(ctx, fr.Seq); err == nil {
			entry.Preview = preview(payload, 80)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func preview(payload []byte, limit int) string {
	if len(payload) > limit {
		payload = payload[:limit]
	}
	return string(payload)
}

// Stats reports counters and index presence for the open file.
func (m *Memory) Stats(ctx context.Context) (domain.Stats, error) {
	stats := m.store.Stats()
	m.mu.Lock()
	stats.HasVecIndex = m.vec.Len() > 0
	stats.HasLexIndex = m.lex.Len() > 0
	stats.HasTimeIndex = m.times.Len() > 0
	m.mu.Unlock()
	return stats, nil
}

// Verify re-checksums every committed segment and index region.
func (m *Memory) Verify(ctx context.Context) (domain.VerifyReport, error) {
	checks := m.store.Verify()
	report := domain.VerifyReport{Status: domain.VerifyPassed, Checks: checks}
	for _, c := range checks {
		if !c.Passed {
			report.Status = domain.VerifyFailed
		}
	}
	return report, nil
}

// commit serialises the in-memory indexes and folds all appended state
// into a new footer.
func (m *Memory) commit() error {
	m.mu.Lock()
	lexBytes, err := m.lex.Marshal()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	vecBytes, err := m.vec.Marshal()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	timeBytes := m.times.Marshal()
	m.mu.Unlock()

	return m.store.Commit(lexBytes, vecBytes, timeBytes)
}

// Close commits pending state and releases every resource.
func (m *Memory) Close() error {
	var firstErr error
	if !m.store.ReadOnly() && m.store.NeedsCommit() {
		if err := m.commit(); err != nil {
			firstErr = err
		}
	}
	if err := m.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if m.embedder != nil {
		if err := m.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.completer != nil {
		if err := m.completer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
