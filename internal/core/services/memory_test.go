package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/png"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/memvault/internal/codec"
	"github.com/custodia-labs/memvault/internal/config"
	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/core/ports/driven"
	"github.com/custodia-labs/memvault/internal/store"
)

// stubBackend packs frames losslessly as length-prefixed PNGs so the
// full ingest and retrieval pipeline runs without an ffmpeg binary.
type stubBackend struct {
	unavailable map[codec.Family]bool
}

func (s *stubBackend) Available(p codec.Profile) error {
	if s.unavailable[p.Family] {
		return fmt.Errorf("%w: stub has no %s encoder", domain.ErrCodecUnavailable, p.Family)
	}
	return nil
}

func (s *stubBackend) Encode(_ context.Context, frames []image.Image, p codec.Profile) ([]byte, error) {
	if err := s.Available(p); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for _, frame := range frames {
		var buf bytes.Buffer
		if err := png.Encode(&buf, frame); err != nil {
			return nil, err
		}
		fmt.Fprintf(&out, "%12d", buf.Len())
		out.Write(buf.Bytes())
	}
	return out.Bytes(), nil
}

func (s *stubBackend) DecodeFrame(_ context.Context, stream []byte, index int, p codec.Profile) (image.Image, error) {
	if err := s.Available(p); err != nil {
		return nil, err
	}
	rest := stream
	for i := 0; ; i++ {
		if len(rest) < 12 {
			return nil, fmt.Errorf("%w: frame %d not present in stream", domain.ErrUnscannable, index)
		}
		var n int
		if _, err := fmt.Sscanf(string(rest[:12]), "%d", &n); err != nil {
			return nil, err
		}
		if i == index {
			return png.Decode(bytes.NewReader(rest[12 : 12+n]))
		}
		rest = rest[12+n:]
	}
}

// stubEmbedder is a deterministic feature-hash embedder.
type stubEmbedder struct {
	dim  int
	fail bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedding backend down")
	}
	vec := make([]float32, s.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%s.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int   { return s.dim }
func (s *stubEmbedder) ModelName() string { return "stub-hash" }
func (s *stubEmbedder) Close() error      { return nil }

// stubCompleter records the last request and returns a canned answer.
type stubCompleter struct {
	answer string
	err    error
	last   driven.CompletionRequest
	calls  int
}

func (s *stubCompleter) Complete(_ context.Context, req driven.CompletionRequest) (string, error) {
	s.last = req
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubCompleter) ModelName() string { return "stub-llm" }
func (s *stubCompleter) Close() error      { return nil }

func testConfig() config.Config {
	cfg := config.Default()
	// Small chunks keep the rendered codes sparse enough to scan reliably.
	cfg.Chunker.ChunkSize = 600
	cfg.Chunker.Overlap = 50
	cfg.Optical.FrameSize = 512
	cfg.Ingest.Workers = 2
	return cfg
}

type testEnv struct {
	mem  *Memory
	path string
	cfg  config.Config
}

func newTestMemory(t *testing.T, embedder driven.EmbeddingService, completer driven.CompletionService) *testEnv {
	t.Helper()
	return newTestMemoryCfg(t, testConfig(), embedder, completer)
}

func newTestMemoryCfg(t *testing.T, cfg config.Config, embedder driven.EmbeddingService, completer driven.CompletionService) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.mv")

	opts := store.CreateOptions{WALSize: 64 << 10}
	if embedder != nil {
		opts.EmbeddingModel = embedder.ModelName()
		opts.EmbeddingDim = embedder.Dimensions()
	}
	st, err := store.Create(path, opts)
	require.NoError(t, err)

	packer := codec.NewPacker(&stubBackend{}, nil)
	mem, err := NewMemory(cfg, st, packer, embedder, completer)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	return &testEnv{mem: mem, path: path, cfg: cfg}
}

func TestIngestProducesChunksAndFrames(t *testing.T) {
	env := newTestMemory(t, nil, nil)
	ctx := context.Background()

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 30)
	receipt, err := env.mem.Ingest(ctx, text, domain.IngestOptions{URI: "note://fox"})
	require.NoError(t, err)

	assert.Greater(t, len(receipt.ChunkIDs), 1)
	assert.GreaterOrEqual(t, len(receipt.FrameSeqs), len(receipt.ChunkIDs))
	assert.NotEmpty(t, receipt.Profile)
	assert.Positive(t, receipt.SegmentBytes)
}

func TestIngestRejectsEmptyText(t *testing.T) {
	env := newTestMemory(t, nil, nil)

	_, err := env.mem.Ingest(context.Background(), "   \n", domain.IngestOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSearchLexicalOnly(t *testing.T) {
	env := newTestMemory(t, nil, nil)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "zebras graze on the open savanna", domain.IngestOptions{URI: "note://zebra"})
	require.NoError(t, err)
	_, err = env.mem.Ingest(ctx, "submarines patrol the deep ocean", domain.IngestOptions{URI: "note://sub"})
	require.NoError(t, err)

	results, err := env.mem.Search(ctx, "savanna zebras", domain.SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "lexical", results[0].Source)
	assert.Contains(t, results[0].Chunk.Text, "savanna")
	assert.Equal(t, "note://zebra", results[0].Chunk.URI)
}

func TestSearchMergesVectorAndLexical(t *testing.T) {
	env := newTestMemory(t, &stubEmbedder{dim: 32}, nil)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "zebras graze on the open savanna", domain.IngestOptions{URI: "note://zebra"})
	require.NoError(t, err)
	_, err = env.mem.Ingest(ctx, "submarines patrol the deep ocean", domain.IngestOptions{URI: "note://sub"})
	require.NoError(t, err)

	results, err := env.mem.Search(ctx, "zebras graze savanna", domain.SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "merged", results[0].Source)
	assert.Equal(t, "note://zebra", results[0].Chunk.URI)
}

func TestSearchSemanticOnlyWithoutEmbedderFails(t *testing.T) {
	env := newTestMemory(t, nil, nil)

	_, err := env.mem.Search(context.Background(), "anything", domain.SearchOptions{Semantic: true})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestSearchDegradesToLexicalWhenEmbeddingFails(t *testing.T) {
	embedder := &stubEmbedder{dim: 32}
	env := newTestMemory(t, embedder, nil)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "zebras graze on the open savanna", domain.IngestOptions{})
	require.NoError(t, err)

	embedder.fail = true
	results, err := env.mem.Search(ctx, "savanna", domain.SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "lexical", results[0].Source)
}

func TestSearchEmptyQuery(t *testing.T) {
	env := newTestMemory(t, nil, nil)

	_, err := env.mem.Search(context.Background(), "  ", domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSupersededChunksDropOutOfResults(t *testing.T) {
	env := newTestMemory(t, nil, nil)
	ctx := context.Background()

	first, err := env.mem.Ingest(ctx, "the meeting is on tuesday", domain.IngestOptions{URI: "note://meeting"})
	require.NoError(t, err)

	_, err = env.mem.Ingest(ctx, "the meeting moved to thursday", domain.IngestOptions{
		URI:        "note://meeting",
		Supersedes: first.ChunkIDs,
	})
	require.NoError(t, err)

	results, err := env.mem.Search(ctx, "meeting", domain.SearchOptions{TopK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotContains(t, first.ChunkIDs, r.Chunk.ID, "tombstoned chunk surfaced")
		assert.NotContains(t, r.Chunk.Text, "tuesday")
	}
}

func TestAskAssemblesContextAndRecordsHistory(t *testing.T) {
	completer := &stubCompleter{answer: "It moved to thursday. [1]"}
	env := newTestMemory(t, nil, completer)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "the weekly sync meeting moved to thursday afternoon", domain.IngestOptions{URI: "note://meeting"})
	require.NoError(t, err)

	resp, err := env.mem.Ask(ctx, "when is the meeting?", domain.AskOptions{Temperature: -1})
	require.NoError(t, err)

	assert.Equal(t, "It moved to thursday. [1]", resp.Answer)
	require.NotEmpty(t, resp.Citations)
	assert.Equal(t, "note://meeting", resp.Citations[0].URI)
	assert.Positive(t, resp.ContextTokens)

	assert.Contains(t, completer.last.System, "[1]")
	assert.Contains(t, completer.last.System, "thursday afternoon")
	require.NotEmpty(t, completer.last.Messages)
	assert.Equal(t, "when is the meeting?", completer.last.Messages[len(completer.last.Messages)-1].Text)

	history := env.mem.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)

	// A second question carries the prior turns.
	_, err = env.mem.Ask(ctx, "are you sure?", domain.AskOptions{Temperature: -1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(completer.last.Messages), 3)
}

func TestAskCompletionFailureLeavesHistoryUntouched(t *testing.T) {
	completer := &stubCompleter{err: errors.New("rate limited")}
	env := newTestMemory(t, nil, completer)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "some context", domain.IngestOptions{})
	require.NoError(t, err)

	_, err = env.mem.Ask(ctx, "question", domain.AskOptions{Temperature: -1})
	assert.ErrorIs(t, err, domain.ErrCompletionFailed)
	assert.Empty(t, env.mem.History())
	assert.Equal(t, 1, completer.calls, "no retry on completion failure")
}

func TestAskHistoryStaysBounded(t *testing.T) {
	completer := &stubCompleter{answer: "answer"}
	cfg := testConfig()
	cfg.Ask.MaxHistory = 2
	env := newTestMemoryCfg(t, cfg, nil, completer)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "some context for questions", domain.IngestOptions{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := env.mem.Ask(ctx, fmt.Sprintf("question %d", i), domain.AskOptions{Temperature: -1})
		require.NoError(t, err)
	}

	history := env.mem.History()
	require.Len(t, history, 4, "two exchanges of two turns each")
	assert.Equal(t, "question 3", history[0].Text)
	assert.Equal(t, "question 4", history[2].Text)
}

func TestIngestRejectsFrameWiderThanProfileRaster(t *testing.T) {
	cfg := testConfig()
	cfg.Optical.FrameSize = 1024
	env := newTestMemoryCfg(t, cfg, nil, nil)

	_, err := env.mem.Ingest(context.Background(), "some text", domain.IngestOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestAskWithoutCompleter(t *testing.T) {
	env := newTestMemory(t, nil, nil)

	_, err := env.mem.Ask(context.Background(), "question", domain.AskOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestTimelineOrdersAndPreviews(t *testing.T) {
	env := newTestMemory(t, nil, nil)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "first note about apples", domain.IngestOptions{URI: "note://a"})
	require.NoError(t, err)
	_, err = env.mem.Ingest(ctx, "second note about oranges", domain.IngestOptions{URI: "note://b"})
	require.NoError(t, err)

	entries, err := env.mem.Timeline(ctx, domain.TimelineOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	assert.Equal(t, "note://a", entries[0].URI)
	assert.Contains(t, entries[0].Preview, "apples")

	reversed, err := env.mem.Timeline(ctx, domain.TimelineOptions{Reverse: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, reversed, 1)
	assert.Equal(t, entries[1].Seq, reversed[0].Seq)
}

func TestStatsReflectsIngestedState(t *testing.T) {
	env := newTestMemory(t, &stubEmbedder{dim: 16}, nil)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "a note to count", domain.IngestOptions{})
	require.NoError(t, err)

	stats, err := env.mem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, 1, stats.SegmentCount)
	assert.Positive(t, stats.FrameCount)
	assert.True(t, stats.HasLexIndex)
	assert.True(t, stats.HasVecIndex)
	assert.True(t, stats.HasTimeIndex)
}

func TestVerifyPassesOnHealthyFile(t *testing.T) {
	env := newTestMemory(t, nil, nil)
	ctx := context.Background()

	_, err := env.mem.Ingest(ctx, "healthy content", domain.IngestOptions{})
	require.NoError(t, err)

	report, err := env.mem.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyPassed, report.Status)
	assert.NotEmpty(t, report.Checks)
}

func TestCloseCommitsAndReopenRestoresIndexes(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "memory.mv")

	st, err := store.Create(path, store.CreateOptions{WALSize: 64 << 10})
	require.NoError(t, err)
	packer := codec.NewPacker(&stubBackend{}, nil)
	mem, err := NewMemory(cfg, st, packer, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = mem.Ingest(ctx, "persistent fact about glaciers", domain.IngestOptions{URI: "note://ice"})
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	st2, err := store.Open(path, false)
	require.NoError(t, err)
	mem2, err := NewMemory(cfg, st2, codec.NewPacker(&stubBackend{}, nil), nil, nil)
	require.NoError(t, err)
	defer mem2.Close()

	results, err := mem2.Search(ctx, "glaciers", domain.SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Text, "glaciers")
}

func TestNewMemoryRejectsEmbeddingMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.mv")
	st, err := store.Create(path, store.CreateOptions{
		WALSize:        64 << 10,
		EmbeddingModel: "other-model",
		EmbeddingDim:   99,
	})
	require.NoError(t, err)
	defer st.Close()

	_, err = NewMemory(testConfig(), st, codec.NewPacker(&stubBackend{}, nil), &stubEmbedder{dim: 16}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
