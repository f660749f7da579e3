package rag

import "errors"

// Sentinel errors forming the engine's error taxonomy. Low-level storage and
// network errors are wrapped into one of these at the engine boundary, so
// callers match with errors.Is and never see raw driver errors.
var (
	// ErrConfig indicates an invalid chunk/overlap size, cache capacity, or
	// similar startup misconfiguration. Fatal at construction time.
	ErrConfig = errors.New("invalid configuration")

	// ErrEmbedding indicates the embedding model is unavailable or returned
	// an unusable result. Fatal for the current operation only.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensionMismatch indicates an embedding whose dimension differs
	// from the dimension declared at startup.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrPoolExhausted indicates no storage connection became available
	// within the acquisition timeout. The engine retries the affected
	// operation once with backoff before surfacing it.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrIngest indicates a storage write failure during document add.
	// No partial document remains visible after cleanup.
	ErrIngest = errors.New("document ingest failed")

	// ErrRetrieval indicates both search branches failed. Not retried
	// automatically.
	ErrRetrieval = errors.New("retrieval failed")
)
