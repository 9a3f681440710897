// Package driven defines the interfaces that core calls OUT to external
// collaborators.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// The engine itself (backing file, codec, optical layer, indexes, cache)
// is core infrastructure, not a port: its format is the product. Only the
// pluggable model providers cross the boundary:
//
//   - EmbeddingService: text -> fixed-dimension vector, by model name
//   - CompletionService: assembled prompt -> completion text
//
// Both are optional. Without EmbeddingService, semantic search degrades
// to lexical-only. Without CompletionService, Ask is disabled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
