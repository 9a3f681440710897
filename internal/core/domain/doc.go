// Package domain defines the core business entities for memvault.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Chunk: A bounded text segment, the unit of ingestion and retrieval
//   - Frame: One optical-code raster image holding one chunk shard
//   - SearchResult: A ranked retrieval hit
//   - Turn / AskResponse: Conversational context and grounded answers
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
