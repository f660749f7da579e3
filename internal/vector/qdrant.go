// Package vector implements the optional dedicated vector index backed by
// Qdrant. When configured, chunk embeddings are mirrored into Qdrant at
// ingest time and the engine's vector branch queries it instead of the graph
// store's native index — useful when the corpus outgrows what the graph
// database's vector index handles comfortably.
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kbforge/graphrag-go/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored here.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements rag.VectorIndex backed by a Qdrant collection.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection
// exists (creating it with cosine distance if necessary).
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// pointID derives a deterministic UUID for a chunk so repeated upserts of
// the same chunk overwrite rather than duplicate.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// Upsert mirrors a batch of chunks with their pre-computed embeddings.
// meta is the parent document's flattened metadata, copied into each point's
// payload for attribution at query time.
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []rag.Chunk, meta map[string]string) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload := map[string]any{
			"chunk_id": c.ID,
			"doc_id":   c.DocID,
			"text":     c.Text,
		}
		for k, v := range meta {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (q *QdrantIndex) Search(ctx context.Context, embedding []float32, k int) ([]rag.SearchResult, error) {
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	out := make([]rag.SearchResult, 0, len(results))
	for _, r := range results {
		res := rag.SearchResult{Score: float64(r.Score)}
		if p := r.Payload; p != nil {
			if v, ok := p["chunk_id"]; ok {
				res.ChunkID = v.GetStringValue()
			}
			if v, ok := p["doc_id"]; ok {
				res.DocID = v.GetStringValue()
			}
			if v, ok := p["text"]; ok {
				res.Text = v.GetStringValue()
			}
			meta := make(map[string]string)
			for k, v := range p {
				switch k {
				case "chunk_id", "doc_id", "text":
					continue
				}
				meta[k] = v.GetStringValue()
			}
			if len(meta) > 0 {
				res.Metadata = meta
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// Delete removes the points stored for the given chunk IDs.
func (q *QdrantIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, qdrant.NewIDUUID(pointID(id)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete points failed: %w", err)
	}
	return nil
}

// Clear drops the whole collection and recreates it empty.
func (q *QdrantIndex) Clear(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: delete collection failed: %w", err)
	}
	return q.ensureCollection(ctx)
}

// Ping checks reachability by probing collection existence.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.CollectionExists(ctx, q.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	return nil
}

// Name returns the dependency label used in readiness responses.
func (q *QdrantIndex) Name() string { return "qdrant" }

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
