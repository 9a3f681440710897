package domain

// SearchOptions configures a search query.
type SearchOptions struct {
	// TopK is the maximum number of results.
	TopK int

	// Lexical restricts the search to the lexical index only.
	Lexical bool

	// Semantic restricts the search to the vector index only.
	Semantic bool
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// Chunk is the matched chunk, hydrated from its decoded frames.
	Chunk Chunk

	// Score is the relevance score. For merged results this is the
	// reciprocal-rank-fusion score, not a raw similarity.
	Score float64

	// FrameSeqs are the frames holding this chunk.
	FrameSeqs []FrameSeq

	// Source records which index produced the hit: "vector", "lexical"
	// or "merged".
	Source string
}
