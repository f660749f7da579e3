//go:build integration

package embedder

import (
	"context"
	"math"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration runs the embedder against a locally running
// Ollama instance end-to-end, including a semantic sanity check that related
// texts score closer than unrelated ones under cosine similarity.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve   (or it must already be running)
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
//
// Set OLLAMA_HOST if Ollama is not on localhost:11434.
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}

	emb := NewOllamaEmbedder(&OllamaConfig{
		Host:  host,
		Model: model,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Neo4j is a graph database that uses the Cypher query language.",
		"Cypher is the query language used by the Neo4j graph database.",
		"The recipe calls for two cups of flour and a pinch of salt.",
	}

	embeddings, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}

	if len(embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	dim := len(embeddings[0])
	for i, vec := range embeddings {
		if len(vec) == 0 {
			t.Fatalf("embedding[%d] is empty", i)
		}
		if len(vec) != dim {
			t.Fatalf("embedding[%d] has dim %d, embedding[0] has %d", i, len(vec), dim)
		}
	}

	// The two Neo4j sentences should sit closer together than either does to
	// the cooking sentence. This catches a model that returns constant or
	// garbage vectors, which a pure shape check would miss.
	related := cosine(embeddings[0], embeddings[1])
	unrelated := cosine(embeddings[0], embeddings[2])
	t.Logf("cosine(related)=%.4f cosine(unrelated)=%.4f", related, unrelated)
	if related <= unrelated {
		t.Errorf("related texts scored %.4f, unrelated %.4f; expected related > unrelated", related, unrelated)
	}

	// Dimension matters operationally: the vector index is created with a
	// fixed size and rejects mismatched vectors.
	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d for the vector index)", model, dim, dim)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
