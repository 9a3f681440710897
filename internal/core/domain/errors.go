package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfiguration indicates rejected configuration, such as a
	// chunk overlap that is not smaller than the chunk size. It is raised
	// before any I/O happens.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrCodecUnavailable indicates the encoder backend for the requested
	// codec profile is missing. Callers fall back to the alternate profile
	// list in priority order.
	ErrCodecUnavailable = errors.New("codec unavailable")

	// ErrUnscannable indicates no valid optical code was recovered from a
	// frame image, typically due to compression artifacting beyond the
	// configured redundancy level.
	ErrUnscannable = errors.New("frame unscannable")

	// ErrChecksumMismatch indicates a frame payload was recovered but its
	// embedded checksum does not match the recomputed one.
	ErrChecksumMismatch = errors.New("frame checksum mismatch")

	// ErrDecodeTimeout indicates a single frame decode exceeded the
	// configured timeout. Non-fatal; the decode is retried on the next
	// explicit request, never by the prefetcher.
	ErrDecodeTimeout = errors.New("decode timeout")

	// ErrTornWrite indicates a segment whose write-ahead intent was never
	// finalized. The segment is discarded at reopen; committed segments
	// remain intact.
	ErrTornWrite = errors.New("torn write")

	// ErrCompletionFailed indicates the external completion service failed.
	// Surfaced verbatim; retry policy belongs to the caller.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Vector/semantic search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrReadOnly indicates a mutation was attempted on a memory opened
	// without write access.
	ErrReadOnly = errors.New("memory is read-only")
)
