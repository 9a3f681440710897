package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query to find stored chunks"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default 5)"`
	Lexical  bool   `json:"lexical,omitempty" jsonschema:"restrict to keyword search only"`
	Semantic bool   `json:"semantic,omitempty" jsonschema:"restrict to semantic search only"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ChunkID string  `json:"chunk_id"`
	Title   string  `json:"title"`
	URI     string  `json:"uri"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
	Text    string  `json:"text"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the stored memory"`
	Chunks   int    `json:"chunks,omitempty" jsonschema:"retrieved chunks per question (default from config)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer    string           `json:"answer"`
	Citations []CitationOutput `json:"citations"`
}

// CitationOutput points an answer back at a retrieved chunk.
type CitationOutput struct {
	ChunkID string  `json:"chunk_id"`
	URI     string  `json:"uri"`
	Score   float64 `json:"score"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Text  string `json:"text" jsonschema:"the text to store"`
	URI   string `json:"uri,omitempty" jsonschema:"source URI recorded on every chunk"`
	Title string `json:"title,omitempty" jsonschema:"title recorded on every chunk"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	ChunkIDs []string `json:"chunk_ids"`
	Frames   int      `json:"frames"`
	Profile  string   `json:"profile"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the stored memory for relevant chunks",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the stored memory with citations",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest",
		Description: "Store new text in the memory",
	}, s.handleIngest)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	opts := domain.SearchOptions{
		TopK:     topK,
		Lexical:  input.Lexical,
		Semantic: input.Semantic,
	}
	results, err := s.ports.Memory.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}

	for i := range results {
		output.Results[i] = SearchResultOutput{
			ChunkID: results[i].Chunk.ID,
			Title:   results[i].Chunk.Title,
			URI:     results[i].Chunk.URI,
			Score:   results[i].Score,
			Source:  results[i].Source,
			Text:    results[i].Chunk.Text,
		}
	}

	return nil, output, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	resp, err := s.ports.Memory.Ask(ctx, input.Question, domain.AskOptions{
		ChunksPerQuery: input.Chunks,
		Temperature:    -1,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:    resp.Answer,
		Citations: make([]CitationOutput, len(resp.Citations)),
	}
	for i, c := range resp.Citations {
		output.Citations[i] = CitationOutput{
			ChunkID: c.ChunkID,
			URI:     c.URI,
			Score:   c.Score,
		}
	}
	return nil, output, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	receipt, err := s.ports.Memory.Ingest(ctx, input.Text, domain.IngestOptions{
		URI:   input.URI,
		Title: input.Title,
	})
	if err != nil {
		return nil, IngestOutput{}, err
	}

	return nil, IngestOutput{
		ChunkIDs: receipt.ChunkIDs,
		Frames:   len(receipt.FrameSeqs),
		Profile:  receipt.Profile,
	}, nil
}
