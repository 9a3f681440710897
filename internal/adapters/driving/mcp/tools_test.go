package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		mockMemory := &mockMemoryService{
			results: []domain.SearchResult{
				{
					Chunk: domain.Chunk{
						ID:    "chunk-1",
						Title: "Test Note",
						URI:   "note://test",
						Text:  "This is the content",
					},
					Score:  0.95,
					Source: "merged",
				},
			},
		}

		ports := &Ports{Memory: mockMemory}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "test", TopK: 10}
		_, output, err := server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		assert.Len(t, output.Results, 1)
		assert.Equal(t, "chunk-1", output.Results[0].ChunkID)
		assert.Equal(t, "Test Note", output.Results[0].Title)
		assert.Equal(t, "note://test", output.Results[0].URI)
		assert.Equal(t, 0.95, output.Results[0].Score)
		assert.Equal(t, "merged", output.Results[0].Source)
		assert.Equal(t, "This is the content", output.Results[0].Text)
	})

	t.Run("default top_k is 5", func(t *testing.T) {
		mockMemory := &mockMemoryService{}
		ports := &Ports{Memory: mockMemory}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "test", TopK: 0}
		_, output, err := server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, 5, mockMemory.lastSearch.TopK)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		mockMemory := &mockMemoryService{
			err: errors.New("search failed"),
		}

		ports := &Ports{Memory: mockMemory}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "test"}
		_, _, err = server.handleSearch(ctx, nil, input)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer with citations", func(t *testing.T) {
		mockMemory := &mockMemoryService{
			response: domain.AskResponse{
				Answer: "The answer is 42. [1]",
				Citations: []domain.Citation{
					{ChunkID: "chunk-1", URI: "note://test", Score: 0.9},
				},
			},
		}

		ports := &Ports{Memory: mockMemory}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := AskInput{Question: "what is the answer?"}
		_, output, err := server.handleAsk(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "The answer is 42. [1]", output.Answer)
		require.Len(t, output.Citations, 1)
		assert.Equal(t, "chunk-1", output.Citations[0].ChunkID)
		assert.Equal(t, "what is the answer?", mockMemory.lastQuestion)
	})

	t.Run("returns error on completion failure", func(t *testing.T) {
		mockMemory := &mockMemoryService{
			err: domain.ErrCompletionFailed,
		}

		ports := &Ports{Memory: mockMemory}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := AskInput{Question: "anything"}
		_, _, err = server.handleAsk(ctx, nil, input)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCompletionFailed)
	})
}

func TestServer_handleIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("returns receipt", func(t *testing.T) {
		mockMemory := &mockMemoryService{
			receipt: domain.IngestReceipt{
				ChunkIDs:  []string{"chunk-1", "chunk-2"},
				FrameSeqs: []domain.FrameSeq{1, 2, 3},
				Profile:   "h264",
			},
		}

		ports := &Ports{Memory: mockMemory}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := IngestInput{Text: "some text", URI: "note://manual", Title: "Manual"}
		_, output, err := server.handleIngest(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, []string{"chunk-1", "chunk-2"}, output.ChunkIDs)
		assert.Equal(t, 3, output.Frames)
		assert.Equal(t, "h264", output.Profile)
		assert.Equal(t, "some text", mockMemory.lastText)
		assert.Equal(t, "note://manual", mockMemory.lastIngest.URI)
	})

	t.Run("returns error on read-only file", func(t *testing.T) {
		mockMemory := &mockMemoryService{
			err: domain.ErrReadOnly,
		}

		ports := &Ports{Memory: mockMemory}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := IngestInput{Text: "some text"}
		_, _, err = server.handleIngest(ctx, nil, input)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrReadOnly)
	})
}
