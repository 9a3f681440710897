package driving

import (
	"context"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// MemoryService is the primary driving port: one open memory file and the
// operations the CLI and MCP surfaces drive it with.
type MemoryService interface {
	// Ingest chunks the text, encodes optical frames, packs them as a new
	// segment and updates the indexes. The whole call either commits or
	// leaves previously committed segments untouched.
	Ingest(ctx context.Context, text string, opts domain.IngestOptions) (domain.IngestReceipt, error)

	// Search runs the retrieval pipeline: embedding, index search, cache
	// or decode, hydration. Unscannable frames degrade the result set
	// instead of failing the query.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Ask retrieves context for the question, assembles a bounded prompt
	// with trailing conversation history and invokes the completion
	// service. History is appended only after a successful completion.
	Ask(ctx context.Context, question string, opts domain.AskOptions) (domain.AskResponse, error)

	// Timeline lists frames in chronological order.
	Timeline(ctx context.Context, opts domain.TimelineOptions) ([]domain.TimelineEntry, error)

	// Stats reports counters and index presence for the open file.
	Stats(ctx context.Context) (domain.Stats, error)

	// Verify re-checksums every committed segment and region.
	Verify(ctx context.Context) (domain.VerifyReport, error)

	// Close commits pending state and releases the file.
	Close() error
}
