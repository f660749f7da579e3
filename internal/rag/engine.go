package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbforge/graphrag-go/internal/chunker"
	"github.com/kbforge/graphrag-go/internal/logging"
)

// Engine defaults applied by New when the corresponding Config field is zero.
const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 300
	// DefaultChunkOverlap is the number of characters consecutive chunks share.
	DefaultChunkOverlap = 50
	// DefaultTopK is the result count used when a caller passes k <= 0.
	DefaultTopK = 5
	// DefaultAlpha is the hybrid merge weight for the vector component.
	DefaultAlpha = 0.5
	// DefaultBranchTimeout bounds each search branch independently.
	DefaultBranchTimeout = 10 * time.Second
	// DefaultRetryBackoff is the pause before the single retry of an
	// operation that failed with ErrPoolExhausted.
	DefaultRetryBackoff = 100 * time.Millisecond
)

// Config holds the retrieval engine configuration. Zero values select the
// defaults above; invalid combinations are rejected by New with ErrConfig.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int

	// ChunkOverlap is the number of characters consecutive chunks share.
	// Must be strictly less than ChunkSize.
	ChunkOverlap int

	// CacheCapacity bounds the query cache (default 100).
	CacheCapacity int

	// Alpha weights the vector component in the hybrid merge score:
	// alpha*vector + (1-alpha)*keyword. Must be within [0, 1]; 0 ranks by
	// keyword relevance alone and 1 by vector similarity alone. nil selects
	// DefaultAlpha (a pointer so an explicit 0 survives defaulting).
	Alpha *float64

	// ScoreThreshold excludes results whose merged score falls below it.
	// Zero disables the filter. Matching nothing above the threshold yields
	// an empty result set, not an error.
	ScoreThreshold float64

	// Dimensions is the embedding dimension declared at startup. Every
	// vector produced by the embedder is validated against it.
	Dimensions int

	// BranchTimeout bounds each search branch independently. A branch that
	// exceeds it counts as a branch failure, not a whole-query failure.
	BranchTimeout time.Duration

	// RetryBackoff is the pause before retrying a pool-exhausted operation.
	RetryBackoff time.Duration

	// Registry receives the engine's Prometheus metrics. Defaults to the
	// global default registerer.
	Registry prometheus.Registerer

	// Logger is the structured logger. Defaults to slog.Default.
	Logger *slog.Logger
}

// Engine orchestrates chunking and embedding on ingest, and hybrid
// vector + keyword retrieval with caching on query. It is safe for
// concurrent use; the cache and the store's connection pool are the only
// shared mutable state.
type Engine struct {
	// store persists documents and chunks and runs both search branches.
	store GraphStore

	// vectors is the optional dedicated vector index for the vector branch.
	// When nil the store's native vector index is used.
	vectors VectorIndex

	// embedder converts text to dense vectors.
	embedder Embedder

	// splitter produces overlapping chunks from document content.
	splitter *chunker.Splitter

	// cache is the FIFO query cache.
	cache *QueryCache

	// cfg holds the resolved configuration.
	cfg Config

	// alpha is the resolved hybrid merge weight. Kept separately from cfg
	// so an explicit 0 is distinguishable from an unset Config.Alpha.
	alpha float64

	// metrics are the engine's Prometheus instruments.
	metrics *engineMetrics

	// log is the structured logger for engine events.
	log *slog.Logger
}

// New constructs an Engine from the given dependencies and config.
// Configuration is validated eagerly so operators get a clear ErrConfig at
// startup rather than a failure on the first call.
func New(store GraphStore, embedder Embedder, vectors VectorIndex, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil: %w", ErrConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil: %w", ErrConfig)
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	alpha := DefaultAlpha
	if cfg.Alpha != nil {
		if *cfg.Alpha < 0 || *cfg.Alpha > 1 {
			return nil, fmt.Errorf("rag: alpha %v outside [0,1]: %w", *cfg.Alpha, ErrConfig)
		}
		alpha = *cfg.Alpha
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("rag: embedding dimensions must be positive: %w", ErrConfig)
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = DefaultBranchTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("rag: %v: %w", err, ErrConfig)
	}
	cache, err := NewQueryCache(cfg.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}

	return &Engine{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		splitter: splitter,
		cache:    cache,
		cfg:      cfg,
		alpha:    alpha,
		metrics:  newEngineMetrics(cfg.Registry),
		log:      cfg.Logger,
	}, nil
}

// reservedMetadataKeys collide with the document's own stored properties:
// the store writes metadata alongside them, so accepting these keys would
// silently overwrite the document's identity or content.
var reservedMetadataKeys = map[string]bool{
	"id":         true,
	"content":    true,
	"created_at": true,
}

// AddDocument ingests a document: chunk, batch-embed, write the document and
// all chunks in one transaction scope, then invalidate the query cache.
// docID may be empty, in which case a new UUID is generated. Metadata must be
// flat scalar key-value pairs and may not use the reserved keys above.
// On any write failure the partially written document is cleaned up before
// the error (wrapping ErrIngest) is returned, so no partial documents are
// ever visible in search results.
func (e *Engine) AddDocument(ctx context.Context, content string, metadata map[string]string, docID string) (string, int, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	texts := e.splitter.Split(content)
	if len(texts) == 0 {
		return "", 0, fmt.Errorf("rag: document has no content: %w", ErrIngest)
	}
	for k := range metadata {
		if reservedMetadataKeys[k] {
			return "", 0, fmt.Errorf("rag: metadata key %q is reserved: %w", k, ErrConfig)
		}
	}
	if docID == "" {
		docID = uuid.NewString()
	}

	embeddings, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return "", 0, fmt.Errorf("rag: embedding %d chunks: %v: %w", len(texts), err, ErrEmbedding)
	}
	if len(embeddings) != len(texts) {
		return "", 0, fmt.Errorf("rag: embedder returned %d vectors for %d chunks: %w", len(embeddings), len(texts), ErrEmbedding)
	}
	for i, emb := range embeddings {
		if len(emb) != e.cfg.Dimensions {
			return "", 0, fmt.Errorf("rag: chunk %d has dimension %d, want %d: %w", i, len(emb), e.cfg.Dimensions, ErrDimensionMismatch)
		}
	}

	doc := Document{
		ID:        docID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ID:        fmt.Sprintf("%s:%04d", docID, i),
			DocID:     docID,
			Text:      text,
			Index:     i,
			Embedding: embeddings[i],
		}
	}

	err = e.retryPoolExhausted(ctx, func(ctx context.Context) error {
		return e.store.AddDocument(ctx, doc, chunks)
	})
	if err != nil {
		e.cleanup(ctx, docID)
		// Both the ingest class and the underlying sentinel (e.g. pool
		// exhaustion) stay matchable with errors.Is.
		return "", 0, fmt.Errorf("rag: writing document %s: %w: %w", docID, err, ErrIngest)
	}

	if e.vectors != nil {
		if err := e.vectors.Upsert(ctx, chunks, metadata); err != nil {
			// Keep the graph and the vector index consistent: roll the
			// document back rather than leave the two stores disagreeing.
			e.cleanup(ctx, docID)
			return "", 0, fmt.Errorf("rag: mirroring document %s to vector index: %v: %w", docID, err, ErrIngest)
		}
	}

	e.cache.InvalidateAll()
	e.metrics.cacheInvalidationsTotal.Inc()
	e.metrics.documentsIngestedTotal.Inc()
	e.metrics.chunksIngestedTotal.Add(float64(len(chunks)))
	e.metrics.ingestDurationSeconds.Observe(time.Since(start).Seconds())

	log.Info("document ingested",
		slog.String("doc_id", docID),
		slog.Int("chunks", len(chunks)),
		slog.Duration("duration", time.Since(start)),
	)
	return docID, len(chunks), nil
}

// Search returns the top-k chunks for query under the given mode.
// Repeated queries are served from the FIFO cache without touching the
// embedder or the store. On a miss the vector and keyword branches run
// concurrently, each under its own timeout; a single failed branch degrades
// the result set instead of failing the query.
func (e *Engine) Search(ctx context.Context, query string, k int, mode SearchMode) (*ResultSet, error) {
	start := time.Now()
	if mode == "" {
		mode = ModeHybrid
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("rag: unknown search mode %q: %w", mode, ErrConfig)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	key := CacheKey(query, k, mode)
	if rs := e.cache.Get(key); rs != nil {
		e.metrics.cacheHitsTotal.Inc()
		e.metrics.searchDurationSeconds.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
		return rs, nil
	}
	e.metrics.cacheMissesTotal.Inc()

	rs, err := e.searchUncached(ctx, query, k, mode)
	if err != nil {
		e.metrics.searchesTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, err
	}

	e.cache.Put(key, rs)

	outcome := "ok"
	if rs.Degraded {
		outcome = "degraded"
	}
	e.metrics.searchesTotal.WithLabelValues(string(mode), outcome).Inc()
	e.metrics.searchDurationSeconds.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	return rs, nil
}

// searchUncached executes the storage-backed part of a search.
func (e *Engine) searchUncached(ctx context.Context, query string, k int, mode SearchMode) (*ResultSet, error) {
	log := logging.FromContext(ctx)

	// Keyword-only searches never need an embedding.
	var queryEmbedding []float32
	if mode != ModeKeyword {
		embeddings, err := e.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("rag: embedding query: %v: %w", err, ErrEmbedding)
		}
		if len(embeddings) != 1 {
			return nil, fmt.Errorf("rag: embedder returned %d vectors for one query: %w", len(embeddings), ErrEmbedding)
		}
		if len(embeddings[0]) != e.cfg.Dimensions {
			return nil, fmt.Errorf("rag: query embedding has dimension %d, want %d: %w", len(embeddings[0]), e.cfg.Dimensions, ErrDimensionMismatch)
		}
		queryEmbedding = embeddings[0]
	}

	// Each branch fetches 2k candidates so the merge has enough material to
	// fill k slots after deduplication and threshold filtering.
	candidates := 2 * k

	switch mode {
	case ModeVector:
		results, err := e.runVectorBranch(ctx, queryEmbedding, candidates)
		if err != nil {
			return nil, fmt.Errorf("rag: vector search: %w: %w", err, ErrRetrieval)
		}
		return &ResultSet{Results: e.finalize(results, k)}, nil

	case ModeKeyword:
		results, err := e.runKeywordBranch(ctx, query, candidates)
		if err != nil {
			return nil, fmt.Errorf("rag: keyword search: %w: %w", err, ErrRetrieval)
		}
		return &ResultSet{Results: e.finalize(results, k)}, nil
	}

	// Hybrid: both branches run concurrently against independent indexes.
	// The race between them is intentional and harmless.
	var (
		wg         sync.WaitGroup
		vecResults []SearchResult
		vecErr     error
		kwResults  []SearchResult
		kwErr      error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vecResults, vecErr = e.runVectorBranch(ctx, queryEmbedding, candidates)
	}()
	go func() {
		defer wg.Done()
		kwResults, kwErr = e.runKeywordBranch(ctx, query, candidates)
	}()
	wg.Wait()

	if vecErr != nil && kwErr != nil {
		return nil, fmt.Errorf("rag: both branches failed (vector: %v; keyword: %v): %w", vecErr, kwErr, ErrRetrieval)
	}
	degraded := vecErr != nil || kwErr != nil
	if vecErr != nil {
		log.Warn("vector branch failed, serving keyword-only results", slog.Any("error", vecErr))
	}
	if kwErr != nil {
		log.Warn("keyword branch failed, serving vector-only results", slog.Any("error", kwErr))
	}

	merged := mergeHybrid(vecResults, kwResults, e.alpha)
	return &ResultSet{Results: e.finalize(merged, k), Degraded: degraded}, nil
}

// runVectorBranch executes the vector branch under its own timeout, against
// the dedicated vector index when one is configured.
func (e *Engine) runVectorBranch(ctx context.Context, embedding []float32, k int) ([]SearchResult, error) {
	branchCtx, cancel := context.WithTimeout(ctx, e.cfg.BranchTimeout)
	defer cancel()

	var results []SearchResult
	err := e.retryPoolExhausted(branchCtx, func(ctx context.Context) error {
		var err error
		if e.vectors != nil {
			results, err = e.vectors.Search(ctx, embedding, k)
		} else {
			results, err = e.store.VectorSearch(ctx, embedding, k)
		}
		return err
	})
	return results, err
}

// runKeywordBranch executes the keyword branch under its own timeout.
func (e *Engine) runKeywordBranch(ctx context.Context, query string, k int) ([]SearchResult, error) {
	branchCtx, cancel := context.WithTimeout(ctx, e.cfg.BranchTimeout)
	defer cancel()

	var results []SearchResult
	err := e.retryPoolExhausted(branchCtx, func(ctx context.Context) error {
		var err error
		results, err = e.store.KeywordSearch(ctx, query, k)
		return err
	})
	return results, err
}

// mergeHybrid combines the two candidate lists under the weighted score
// alpha*normVec + (1-alpha)*normKw. Scores are normalized by the maximum in
// each list so the two signals are comparable. Chunks present in both lists
// accumulate both components; chunks in only one list score with the other
// component treated as zero. Insertion order is vector list first, then
// keyword-only chunks, so an exact score tie preserves vector-branch order
// after the stable sort in finalize.
func mergeHybrid(vec, kw []SearchResult, alpha float64) []SearchResult {
	vecNorm := maxScore(vec)
	kwNorm := maxScore(kw)

	merged := make([]SearchResult, 0, len(vec)+len(kw))
	index := make(map[string]int, len(vec)+len(kw))

	for _, r := range vec {
		r.Score = alpha * (r.Score / vecNorm)
		index[r.ChunkID] = len(merged)
		merged = append(merged, r)
	}
	for _, r := range kw {
		component := (1 - alpha) * (r.Score / kwNorm)
		if i, ok := index[r.ChunkID]; ok {
			merged[i].Score += component
			continue
		}
		r.Score = component
		index[r.ChunkID] = len(merged)
		merged = append(merged, r)
	}
	return merged
}

// maxScore returns the largest score in results, or 1 when the list is empty
// or all scores are non-positive, so normalization never divides by zero.
func maxScore(results []SearchResult) float64 {
	max := 0.0
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return 1
	}
	return max
}

// finalize applies the score threshold, sorts descending with a stable sort
// (ties keep insertion order, i.e. vector-branch order), and truncates to k.
func (e *Engine) finalize(results []SearchResult, k int) []SearchResult {
	if e.cfg.ScoreThreshold > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= e.cfg.ScoreThreshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results
}

// Stats returns corpus and cache statistics.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	var docs, chunks int64
	err := e.retryPoolExhausted(ctx, func(ctx context.Context) error {
		var err error
		docs, chunks, err = e.store.Counts(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rag: counting corpus: %w", err)
	}

	s := &Stats{
		DocumentCount: docs,
		ChunkCount:    chunks,
		CacheSize:     e.cache.Len(),
	}
	if docs > 0 {
		s.AvgChunksPerDoc = float64(chunks) / float64(docs)
	}
	return s, nil
}

// DeleteDocument removes a document and all its chunks from the graph store
// and the vector index, then invalidates the query cache so stale results
// cannot be served.
func (e *Engine) DeleteDocument(ctx context.Context, docID string) error {
	var chunkIDs []string
	err := e.retryPoolExhausted(ctx, func(ctx context.Context) error {
		var err error
		chunkIDs, err = e.store.DeleteDocument(ctx, docID)
		return err
	})
	if err != nil {
		return fmt.Errorf("rag: deleting document %s: %w", docID, err)
	}
	if e.vectors != nil && len(chunkIDs) > 0 {
		if err := e.vectors.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("rag: deleting document %s from vector index: %w", docID, err)
		}
	}
	e.cache.InvalidateAll()
	e.metrics.cacheInvalidationsTotal.Inc()
	e.log.Info("document deleted",
		slog.String("doc_id", docID),
		slog.Int("chunks", len(chunkIDs)),
	)
	return nil
}

// Clear deletes all documents and chunks from every store and invalidates
// the query cache.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("rag: clearing store: %w", err)
	}
	if e.vectors != nil {
		if err := e.vectors.Clear(ctx); err != nil {
			return fmt.Errorf("rag: clearing vector index: %w", err)
		}
	}
	e.cache.InvalidateAll()
	e.metrics.cacheInvalidationsTotal.Inc()
	return nil
}

// CacheLen exposes the current query cache size for stats and tests.
func (e *Engine) CacheLen() int { return e.cache.Len() }

// retryPoolExhausted runs op, retrying exactly once with a short backoff when
// it fails with ErrPoolExhausted. Any other error is returned immediately.
func (e *Engine) retryPoolExhausted(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !errors.Is(err, ErrPoolExhausted) {
		return err
	}

	select {
	case <-time.After(e.cfg.RetryBackoff):
	case <-ctx.Done():
		return err
	}
	return op(ctx)
}

// cleanup removes any partially written state for docID after a failed
// ingest. Errors are logged, not returned — the original failure matters
// more to the caller.
func (e *Engine) cleanup(ctx context.Context, docID string) {
	if _, err := e.store.DeleteDocument(ctx, docID); err != nil {
		e.log.Warn("cleanup after failed ingest",
			slog.String("doc_id", docID),
			slog.Any("error", err),
		)
	}
}
