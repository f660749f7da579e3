// Package rag implements the hybrid retrieval engine at the core of graphrag:
// document ingestion (chunk → embed → store), hybrid vector + keyword search
// with weighted score merging, a FIFO query cache, and the answering layer
// that feeds retrieved context to a generation model.
// Concrete storage implementations (Neo4j, Qdrant) satisfy the interfaces
// defined here so the engine never depends on a specific backend.
package rag

import (
	"context"
	"time"
)

// SearchMode selects which retrieval branches a search executes.
type SearchMode string

const (
	// ModeVector ranks chunks by cosine similarity of embeddings only.
	ModeVector SearchMode = "vector"
	// ModeKeyword ranks chunks by full-text match score only.
	ModeKeyword SearchMode = "keyword"
	// ModeHybrid runs both branches concurrently and merges their scores.
	ModeHybrid SearchMode = "hybrid"
)

// Valid reports whether m is one of the supported search modes.
func (m SearchMode) Valid() bool {
	switch m {
	case ModeVector, ModeKeyword, ModeHybrid:
		return true
	}
	return false
}

// Document is a unit of ingested knowledge. It owns one or more chunks.
type Document struct {
	// ID is the unique identifier for this document.
	ID string

	// Content is the full raw text of the document.
	Content string

	// Metadata holds flat scalar key-value pairs. The storage layer does not
	// support nested maps, so nesting is rejected at the API boundary.
	Metadata map[string]string

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// Chunk is a bounded-length segment of a document's text, the atomic unit
// of retrieval. Chunks are immutable once written and are deleted only when
// their parent document is deleted.
type Chunk struct {
	// ID is the unique identifier for this chunk.
	ID string

	// DocID is the ID of the owning document.
	DocID string

	// Text is the chunk's text segment.
	Text string

	// Index is the chunk's ordinal position within its parent document.
	Index int

	// Embedding is the chunk's dense vector. Its dimension is constant
	// across the whole corpus.
	Embedding []float32
}

// SearchResult is a single scored chunk returned by a search.
type SearchResult struct {
	// ChunkID identifies the matched chunk; used for deduplication.
	ChunkID string `json:"chunk_id"`

	// Text is the chunk's text segment.
	Text string `json:"text"`

	// Score is the merged relevance score (higher is more relevant).
	Score float64 `json:"score"`

	// DocID is the ID of the document the chunk belongs to.
	DocID string `json:"doc_id"`

	// Metadata is the flattened metadata of the parent document,
	// carried for attribution.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ResultSet is the ordered outcome of one search call.
type ResultSet struct {
	// Results is the ranked list of scored chunks, best first.
	Results []SearchResult `json:"results"`

	// Degraded is true when one of the two hybrid branches failed and the
	// results come from the surviving branch alone.
	Degraded bool `json:"degraded"`
}

// Stats summarizes the state of the knowledge base.
type Stats struct {
	// DocumentCount is the number of documents stored.
	DocumentCount int64 `json:"document_count"`

	// ChunkCount is the number of chunks stored.
	ChunkCount int64 `json:"chunk_count"`

	// CacheSize is the number of entries currently in the query cache.
	CacheSize int `json:"cache_size"`

	// AvgChunksPerDoc is ChunkCount / DocumentCount, 0 when empty.
	AvgChunksPerDoc float64 `json:"avg_chunks_per_doc"`
}

// GraphStore is the interface for the graph storage engine that persists
// documents and chunks and executes both search branches server-side.
// Implementations must be safe to call from multiple goroutines.
type GraphStore interface {
	// AddDocument writes the document and all its chunks plus the ownership
	// relationship in one transaction scope. Either everything is committed
	// or nothing is visible to subsequent searches.
	AddDocument(ctx context.Context, doc Document, chunks []Chunk) error

	// VectorSearch returns the top-k chunks by cosine similarity to the
	// query embedding. Ranking happens at the storage layer.
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]SearchResult, error)

	// KeywordSearch returns the top-k chunks by full-text match score for
	// the query text.
	KeywordSearch(ctx context.Context, query string, k int) ([]SearchResult, error)

	// DeleteDocument removes a document and all its chunks (cascade).
	// It returns the IDs of the chunks that were removed so callers can
	// propagate the deletion to any secondary index.
	DeleteDocument(ctx context.Context, docID string) ([]string, error)

	// Counts returns the number of stored documents and chunks.
	Counts(ctx context.Context) (docs, chunks int64, err error)

	// Clear deletes all documents and chunks.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}

// VectorIndex is an optional dedicated vector store for the vector branch.
// When configured, chunk embeddings are mirrored into it at ingest time and
// the vector branch queries it instead of the graph store's native index.
// Implementations must be safe to call from multiple goroutines.
type VectorIndex interface {
	// Upsert stores the chunks with their embeddings.
	Upsert(ctx context.Context, chunks []Chunk, meta map[string]string) error

	// Search returns the top-k chunks by cosine similarity.
	Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error)

	// Delete removes the vectors stored for the given chunk IDs.
	Delete(ctx context.Context, chunkIDs []string) error

	// Clear removes all stored vectors.
	Clear(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
