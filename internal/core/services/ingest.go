package services

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/logger"
	"github.com/custodia-labs/memvault/internal/optical"
	"github.com/custodia-labs/memvault/internal/store"
)

// Ingest chunks the text, encodes optical frames, packs them as one new
// segment and updates the indexes. Encoding and embedding run on a
// bounded worker pool; the pack-and-append section is single-writer.
func (m *Memory) Ingest(ctx context.Context, text string, opts domain.IngestOptions) (domain.IngestReceipt, error) {
	if m.store.ReadOnly() {
		return domain.IngestReceipt{}, domain.ErrReadOnly
	}
	if strings.TrimSpace(text) == "" {
		return domain.IngestReceipt{}, fmt.Errorf("%w: nothing to ingest", domain.ErrInvalidConfiguration)
	}
	if opts.URI == "" {
		opts.URI = "note://" + uuid.New().String()
	}
	if opts.Title == "" {
		opts.Title = inferTitleFromURI(opts.URI)
	}

	if m.embedder != nil {
		if err := m.store.SetEmbedding(m.embedder.ModelName(), m.embedder.Dimensions()); err != nil {
			return domain.IngestReceipt{}, err
		}
	}

	logger.Section("Ingest")
	chunks := m.chunker.Split(text, opts).All()
	logger.Info("ingesting %d bytes as %d chunks from %s", len(text), len(chunks), opts.URI)

	profile, err := m.packer.Profile(m.cfg.Codec.Profile)
	if err != nil {
		return domain.IngestReceipt{}, err
	}
	// A code wider than the raster would be cropped by the encoder and
	// every frame would come back unscannable.
	if m.cfg.Optical.FrameSize > profile.Width || m.cfg.Optical.FrameSize > profile.Height {
		return domain.IngestReceipt{}, fmt.Errorf("%w: optical.frame_size %d exceeds profile %s raster %dx%d",
			domain.ErrInvalidConfiguration, m.cfg.Optical.FrameSize, profile.Name, profile.Width, profile.Height)
	}
	level := profile.Redundancy
	if configured, err := optical.ParseRedundancy(m.cfg.Optical.Redundancy); err == nil && configured > level {
		level = configured
	}
	encoder, err := optical.NewEncoder(level, m.cfg.Optical.FrameSize)
	if err != nil {
		return domain.IngestReceipt{}, err
	}

	// Encode every chunk's frames and embed the batch in parallel,
	// bounded by the configured worker count.
	images := make([][]image.Image, len(chunks))
	var vectors [][]float32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Ingest.Workers + 1)
	for i, chunk := range chunks {
		g.Go(func() error {
			imgs, err := encoder.EncodeChunk(chunk.ID, []byte(chunk.Text))
			if err != nil {
				return fmt.Errorf("encode chunk %s: %w", chunk.ID, err)
			}
			images[i] = imgs
			return nil
		})
	}
	if m.embedder != nil {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}
		g.Go(func() error {
			var err error
			vectors, err = m.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch: %w", err)
			}
			if len(vectors) != len(chunks) {
				return fmt.Errorf("embed batch returned %d vectors for %d chunks", len(vectors), len(chunks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.IngestReceipt{}, err
	}

	now := time.Now().UTC()
	var flat []image.Image
	var frames []store.FrameMeta
	metas := make([]store.ChunkMeta, 0, len(chunks))
	for i, chunk := range chunks {
		for shard := range images[i] {
			frames = append(frames, store.FrameMeta{
				ChunkID:    chunk.ID,
				ShardIndex: shard,
				ShardCount: len(images[i]),
				Timestamp:  now,
			})
		}
		flat = append(flat, images[i]...)
		metas = append(metas, store.ChunkMeta{
			ID:        chunk.ID,
			URI:       chunk.URI,
			Title:     chunk.Title,
			Tags:      chunk.Tags,
			Length:    chunk.Length,
			Offset:    chunk.Offset,
			Overlap:   chunk.Overlap,
			CreatedAt: chunk.CreatedAt,
		})
	}

	m.writeMu.Lock()
	data, used, err := m.packer.Pack(ctx, flat, m.cfg.Codec.Profile)
	if err != nil {
		m.writeMu.Unlock()
		return domain.IngestReceipt{}, err
	}
	_, seqs, err := m.store.AppendSegment(data, used.Name, frames, metas, opts.Supersedes)
	m.writeMu.Unlock()
	if err != nil {
		return domain.IngestReceipt{}, err
	}

	m.mu.Lock()
	for i, chunk := range chunks {
		m.lex.Add(chunk.ID, chunk.Text)
		if vectors != nil {
			if err := m.vec.Add(chunk.ID, vectors[i]); err != nil {
				m.mu.Unlock()
				return domain.IngestReceipt{}, err
			}
		}
	}
	for _, seq := range seqs {
		m.times.Add(seq, now)
	}
	for _, id := range opts.Supersedes {
		m.vec.Remove(id)
	}
	m.mu.Unlock()

	if m.store.ShouldCheckpoint() {
		if err := m.commit(); err != nil {
			return domain.IngestReceipt{}, err
		}
	}

	receipt := domain.IngestReceipt{
		ChunkIDs:     make([]string, len(chunks)),
		FrameSeqs:    make([]domain.FrameSeq, len(seqs)),
		Profile:      used.Name,
		SegmentBytes: int64(len(data)),
	}
	for i, chunk := range chunks {
		receipt.ChunkIDs[i] = chunk.ID
	}
	for i, seq := range seqs {
		receipt.FrameSeqs[i] = domain.FrameSeq(seq)
	}
	logger.Info("ingested %d chunks into %d frames (%d bytes, profile %s)",
		len(chunks), len(seqs), len(data), used.Name)
	return receipt, nil
}

// inferTitleFromURI derives a readable title from the last path segment
// of the URI, dropping the extension.
func inferTitleFromURI(uri string) string {
	s := uri
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.Trim(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "."); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(s))
	if s == "" {
		return uri
	}
	return s
}
