package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbforge/graphrag-go/internal/rag"
)

// Index names created by the schema bootstrap. Fixed identifiers — never
// interpolated with caller input.
const (
	vectorIndexName   = "chunk_embeddings"
	fulltextIndexName = "chunk_text"
)

// createChunksCypher and deleteDocumentCypher must agree on where a chunk's
// identifier lives: the cascade delete projects the property the create
// writes, and collect() silently drops NULL projections, so a mismatch
// returns an empty ID list instead of failing loudly.
const (
	createChunksCypher = `MATCH (d:Document {id: $doc_id})
	                      UNWIND $chunks AS ch
	                      CREATE (c:Chunk {id: ch.id, text: ch.text, index: ch.index, embedding: ch.embedding})
	                      CREATE (d)-[:HAS_CHUNK]->(c)`

	deleteDocumentCypher = `MATCH (d:Document {id: $id})
	                        OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk)
	                        WITH d, c, c.id AS chunk_id
	                        DETACH DELETE d, c
	                        RETURN collect(chunk_id) AS chunk_ids`
)

// Config holds connection parameters for a Neo4j store instance.
type Config struct {
	// URI is the bolt/neo4j connection URI (default: neo4j://localhost:7687).
	URI string

	// Username is the Neo4j user (default: neo4j).
	Username string

	// Password is the Neo4j password.
	Password string

	// Database is the target database name. Empty selects the server default.
	Database string

	// Dimensions is the embedding dimension the vector index is created with.
	Dimensions int

	// PoolSize is the maximum number of concurrently leased sessions.
	PoolSize int

	// AcquireTimeout bounds how long an operation waits for a free session.
	AcquireTimeout time.Duration

	// Registry receives the store's Prometheus metrics. Defaults to the
	// global default registerer.
	Registry prometheus.Registerer
}

// Store implements rag.GraphStore backed by a Neo4j instance. Documents and
// chunks are nodes joined by HAS_CHUNK; vector and full-text ranking run
// inside the database via its native indexes, so the corpus is never
// materialized client-side.
type Store struct {
	// driver is the underlying Neo4j driver.
	driver neo4j.DriverWithContext

	// pool bounds concurrent sessions.
	pool *sessionPool

	// cfg holds the resolved configuration.
	cfg *Config

	// metrics instruments pool and query activity.
	metrics *storeMetrics
}

// NewStore connects to Neo4j, bootstraps the schema (unique document IDs,
// vector index, full-text index), sweeps any chunks orphaned by a previous
// crash, and returns a ready-to-use store.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.URI == "" {
		cfg.URI = "neo4j://localhost:7687"
	}
	if cfg.Username == "" {
		cfg.Username = "neo4j"
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("graph: embedding dimensions must be positive")
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: creating driver for %s: %w", cfg.URI, err)
	}

	metrics := newStoreMetrics(cfg.Registry)
	s := &Store{
		driver:  driver,
		cfg:     cfg,
		metrics: metrics,
	}
	s.pool = newSessionPool(s.openSession, cfg.PoolSize, cfg.AcquireTimeout, metrics)

	if err := s.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	if err := s.sweepOrphans(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

// openSession creates one session against the configured database.
func (s *Store) openSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.cfg.Database})
}

// ensureSchema creates the constraint and indexes if they do not exist.
func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT document_id IF NOT EXISTS
		 FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS
		 FOR (c:Chunk) ON (c.embedding)
		 OPTIONS {indexConfig: {
		   `+"`vector.dimensions`"+`: %d,
		   `+"`vector.similarity_function`"+`: 'cosine'
		 }}`, vectorIndexName, s.cfg.Dimensions),
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS
		 FOR (c:Chunk) ON EACH [c.text]`, fulltextIndexName),
	}

	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("graph: schema bootstrap: %w", err)
		}
	}
	return nil
}

// sweepOrphans deletes chunks that lost their parent document, e.g. after a
// crash mid-cleanup. AddDocument itself is transactional, so this only ever
// finds leftovers from previous process lifetimes.
func (s *Store) sweepOrphans(ctx context.Context) error {
	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	const q = `MATCH (c:Chunk) WHERE NOT ( (:Document)-[:HAS_CHUNK]->(c) )
	           DETACH DELETE c`
	if _, err := session.Run(ctx, q, nil); err != nil {
		return fmt.Errorf("graph: sweeping orphaned chunks: %w", err)
	}
	return nil
}

// AddDocument writes the document node, all chunk nodes, and the ownership
// relationships in a single managed write transaction — either everything
// commits or nothing does.
func (s *Store) AddDocument(ctx context.Context, doc rag.Document, chunks []rag.Chunk) error {
	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	s.metrics.queriesTotal.WithLabelValues("add_document").Inc()

	docProps := map[string]any{
		"id":         doc.ID,
		"content":    doc.Content,
		"created_at": doc.CreatedAt.UnixMilli(),
	}
	meta := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}

	chunkRows := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		chunkRows[i] = map[string]any{
			"id":        c.ID,
			"text":      c.Text,
			"index":     c.Index,
			"embedding": toFloat64(c.Embedding),
		}
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		const createDoc = `CREATE (d:Document {id: $id, content: $content, created_at: $created_at})
		                   SET d += $meta`
		if _, err := tx.Run(ctx, createDoc, map[string]any{
			"id":         docProps["id"],
			"content":    docProps["content"],
			"created_at": docProps["created_at"],
			"meta":       meta,
		}); err != nil {
			return nil, err
		}

		if _, err := tx.Run(ctx, createChunksCypher, map[string]any{
			"doc_id": doc.ID,
			"chunks": chunkRows,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: writing document %s: %w", doc.ID, err)
	}
	return nil
}

// VectorSearch ranks chunks by cosine similarity using the database's vector
// index and returns the top k with their owning document's attribution.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]rag.SearchResult, error) {
	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	s.metrics.queriesTotal.WithLabelValues("vector_search").Inc()

	const q = `CALL db.index.vector.queryNodes($index, $k, $embedding)
	           YIELD node, score
	           MATCH (d:Document)-[:HAS_CHUNK]->(node)
	           RETURN node.id AS chunk_id, node.text AS text, score,
	                  d.id AS doc_id, properties(d) AS doc`
	params := map[string]any{
		"index":     vectorIndexName,
		"k":         k,
		"embedding": toFloat64(embedding),
	}
	return s.runSearch(ctx, session, q, params)
}

// KeywordSearch ranks chunks by full-text match score using the database's
// Lucene index. The query text is escaped and passed as a parameter — it is
// never concatenated into the query string.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int) ([]rag.SearchResult, error) {
	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	s.metrics.queriesTotal.WithLabelValues("keyword_search").Inc()

	const q = `CALL db.index.fulltext.queryNodes($index, $query)
	           YIELD node, score
	           MATCH (d:Document)-[:HAS_CHUNK]->(node)
	           RETURN node.id AS chunk_id, node.text AS text, score,
	                  d.id AS doc_id, properties(d) AS doc
	           LIMIT $k`
	params := map[string]any{
		"index": fulltextIndexName,
		"query": escapeLucene(query),
		"k":     k,
	}
	return s.runSearch(ctx, session, q, params)
}

// runSearch executes a read query returning search rows and maps them.
func (s *Store) runSearch(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]any) ([]rag.SearchResult, error) {
	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]rag.SearchResult, 0, len(records))
		for _, rec := range records {
			out = append(out, searchResultFromRow(rec.AsMap()))
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: search query: %w", err)
	}
	return rows.([]rag.SearchResult), nil
}

// DeleteDocument removes a document and cascades to all its chunks,
// returning the IDs of the chunks that were deleted.
func (s *Store) DeleteDocument(ctx context.Context, docID string) ([]string, error) {
	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	s.metrics.queriesTotal.WithLabelValues("delete_document").Inc()

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, deleteDocumentCypher, map[string]any{"id": docID})
		if err != nil {
			return nil, err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			// No matching document — nothing was deleted.
			return []string(nil), nil //nolint:nilerr // absent doc is not an error
		}
		raw, _ := rec.Get("chunk_ids")
		list, ok := raw.([]any)
		if !ok {
			return []string(nil), nil
		}
		ids := make([]string, 0, len(list))
		for _, v := range list {
			if id := asString(v); id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: deleting document %s: %w", docID, err)
	}
	return deleted.([]string), nil
}

// Counts returns the number of stored documents and chunks.
func (s *Store) Counts(ctx context.Context) (int64, int64, error) {
	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer release()
	s.metrics.queriesTotal.WithLabelValues("counts").Inc()

	const q = `CALL { MATCH (d:Document) RETURN count(d) AS docs }
	           CALL { MATCH (c:Chunk) RETURN count(c) AS chunks }
	           RETURN docs, chunks`
	counts, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, q, nil)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		docs, _ := record.Get("docs")
		chunks, _ := record.Get("chunks")
		return [2]int64{asInt64(docs), asInt64(chunks)}, nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("graph: counting corpus: %w", err)
	}
	c := counts.([2]int64)
	return c[0], c[1], nil
}

// Clear deletes all documents and chunks.
func (s *Store) Clear(ctx context.Context) error {
	session, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	s.metrics.queriesTotal.WithLabelValues("clear").Inc()

	const q = `MATCH (n) WHERE n:Document OR n:Chunk DETACH DELETE n`
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, q, nil)
	})
	if err != nil {
		return fmt.Errorf("graph: clearing corpus: %w", err)
	}
	return nil
}

// Ping verifies connectivity to the Neo4j server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return nil
}

// Name returns the dependency label used in readiness responses.
func (s *Store) Name() string { return "neo4j" }

// PoolInUse returns the number of sessions currently leased.
func (s *Store) PoolInUse() int { return s.pool.InUse() }

// Close releases the underlying driver and its connections.
func (s *Store) Close(ctx context.Context) error {
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("graph: close: %w", err)
	}
	return nil
}

// searchResultFromRow maps one query row into a SearchResult. Document
// properties other than the reserved id/content/created_at keys are the
// flattened metadata.
func searchResultFromRow(row map[string]any) rag.SearchResult {
	r := rag.SearchResult{
		ChunkID: asString(row["chunk_id"]),
		Text:    asString(row["text"]),
		DocID:   asString(row["doc_id"]),
	}
	if score, ok := row["score"].(float64); ok {
		r.Score = score
	}
	if props, ok := row["doc"].(map[string]any); ok {
		meta := make(map[string]string)
		for k, v := range props {
			switch k {
			case "id", "content", "created_at":
				continue
			}
			meta[k] = asString(v)
		}
		if len(meta) > 0 {
			r.Metadata = meta
		}
	}
	return r
}

// asString converts a driver value to its string form, or "" for nil.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// asInt64 converts a driver count value to int64.
func asInt64(v any) int64 {
	if n, ok := v.(int64); ok {
		return n
	}
	return 0
}

// toFloat64 widens an embedding to the float64 slice the driver expects.
func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// luceneSpecials are the characters with syntactic meaning in Lucene query
// syntax. Escaping them keeps user queries behaving as plain terms.
const luceneSpecials = `+-&|!(){}[]^"~*?:\/`

// escapeLucene backslash-escapes Lucene query syntax characters in q.
func escapeLucene(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for _, r := range q {
		if strings.ContainsRune(luceneSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
