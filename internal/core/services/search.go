package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/logger"
)

// rrfK is the reciprocal-rank-fusion constant. 60 keeps single
// high-rank outliers from dominating the merged list.
const rrfK = 60

// defaultTopK applies when SearchOptions.TopK is zero.
const defaultTopK = 5

type scoredChunk struct {
	chunkID string
	score   float64
}

// Search runs the retrieval pipeline: embed the query, consult the
// vector and lexical indexes, fuse, then hydrate the winning chunks from
// their decoded frames. A chunk whose frames cannot be decoded is
// dropped from the results rather than failing the query.
func (m *Memory) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidConfiguration)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	wantVector := !opts.Lexical || opts.Semantic
	wantLexical := !opts.Semantic || opts.Lexical

	tombstoned := make(map[string]bool)
	for _, c := range m.store.Chunks() {
		if c.Tombstoned {
			tombstoned[c.ID] = true
		}
	}

	// Over-fetch so tombstone filtering cannot starve the result set.
	candidateK := topK * 3

	logger.Section("Search")
	var vectorHits []scoredChunk
	if wantVector && m.embedder != nil {
		qv, err := m.embedder.Embed(ctx, query)
		if err != nil {
			if !wantLexical {
				return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
			}
			logger.Warn("embedding failed, degrading to lexical only: %v", err)
		} else {
			m.mu.Lock()
			hits := m.vec.Search(qv, candidateK)
			m.mu.Unlock()
			for _, h := range hits {
				if !tombstoned[h.ChunkID] {
					vectorHits = append(vectorHits, scoredChunk{chunkID: h.ChunkID, score: h.Score})
				}
			}
		}
	} else if wantVector && !wantLexical {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrEmbeddingUnavailable)
	}

	var lexicalHits []scoredChunk
	if wantLexical {
		m.mu.Lock()
		hits := m.lex.Search(query, candidateK)
		m.mu.Unlock()
		for _, h := range hits {
			if !tombstoned[h.ChunkID] {
				lexicalHits = append(lexicalHits, scoredChunk{chunkID: h.ChunkID, score: h.Score})
			}
		}
	}

	var ranked []scoredChunk
	source := "merged"
	switch {
	case len(vectorHits) > 0 && len(lexicalHits) > 0:
		logger.Debug("merging %d vector + %d lexical hits", len(vectorHits), len(lexicalHits))
		ranked = reciprocalRankFusion(vectorHits, lexicalHits, rrfK)
	case len(vectorHits) > 0:
		ranked, source = vectorHits, "vector"
	default:
		ranked, source = lexicalHits, "lexical"
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]domain.SearchResult, 0, len(ranked))
	for _, hit := range ranked {
		meta, err := m.store.Chunk(hit.chunkID)
		if err != nil {
			logger.Warn("ranked chunk %s has no metadata: %v", hit.chunkID, err)
			continue
		}
		chunk, err := m.hydrateChunk(ctx, meta)
		if err != nil {
			logger.Warn("dropping chunk %s from results: %v", hit.chunkID, err)
			continue
		}
		seqs := make([]domain.FrameSeq, len(meta.FrameSeqs))
		for i, s := range meta.FrameSeqs {
			seqs[i] = domain.FrameSeq(s)
		}
		results = append(results, domain.SearchResult{
			Chunk:     chunk,
			Score:     hit.score,
			FrameSeqs: seqs,
			Source:    source,
		})
	}
	return results, nil
}

// reciprocalRankFusion merges two ranked lists. Each appearance
// contributes 1/(k + rank + 1); ties break on ascending chunk ID so the
// merged order is stable.
func reciprocalRankFusion(list1, list2 []scoredChunk, k int) []scoredChunk {
	scores := make(map[string]float64)
	for rank, c := range list1 {
		scores[c.chunkID] += 1.0 / float64(k+rank+1)
	}
	for rank, c := range list2 {
		scores[c.chunkID] += 1.0 / float64(k+rank+1)
	}

	merged := make([]scoredChunk, 0, len(scores))
	for id, score := range scores {
		merged = append(merged, scoredChunk{chunkID: id, score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].chunkID < merged[j].chunkID
	})
	return merged
}
