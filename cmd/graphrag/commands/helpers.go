package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbforge/graphrag-go/internal/embedder"
	"github.com/kbforge/graphrag-go/internal/graph"
	"github.com/kbforge/graphrag-go/internal/provider"
	"github.com/kbforge/graphrag-go/internal/rag"
	"github.com/kbforge/graphrag-go/internal/server"
	"github.com/kbforge/graphrag-go/internal/store"
	"github.com/kbforge/graphrag-go/internal/vector"
)

// buildEngine wires the full retrieval stack from environment configuration:
// embedder, Neo4j graph store, optional Qdrant vector index, and the engine
// itself. It returns the engine, the readiness pingers for every live
// dependency, and a closer that releases all of them.
func buildEngine(ctx context.Context, log *slog.Logger, reg *prometheus.Registry) (*rag.Engine, []server.Pinger, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	dimensions := embedder.DefaultDimensions(embBackend)
	log.Info("embedder initialised",
		slog.String("provider", embBackend),
		slog.Int("dimensions", dimensions),
	)

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}

	graphStore, err := graph.NewStore(ctx, &graph.Config{
		URI:            getEnvOrDefault("NEO4J_URI", "neo4j://localhost:7687"),
		Username:       getEnvOrDefault("NEO4J_USERNAME", "neo4j"),
		Password:       os.Getenv("NEO4J_PASSWORD"),
		Database:       os.Getenv("NEO4J_DATABASE"),
		Dimensions:     dimensions,
		PoolSize:       getEnvInt("NEO4J_POOL_SIZE", 0),
		AcquireTimeout: time.Duration(getEnvInt("NEO4J_ACQUIRE_TIMEOUT_MS", 0)) * time.Millisecond,
		Registry:       registerer,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}
	log.Info("neo4j store ready", slog.String("uri", getEnvOrDefault("NEO4J_URI", "neo4j://localhost:7687")))

	pingers := []server.Pinger{graphStore}
	closers := []func(){func() { _ = graphStore.Close(context.Background()) }}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Qdrant is an optional mirror for the vector branch. When QDRANT_HOST
	// is unset the engine falls back to the Neo4j native vector index.
	var vectorIndex rag.VectorIndex
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		idx, idxErr := vector.NewQdrantIndex(ctx, &vector.QdrantConfig{
			Host:       host,
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "graphrag-chunks"),
			VectorSize: uint64(dimensions), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if idxErr != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", host, idxErr)
		}
		vectorIndex = idx
		pingers = append(pingers, idx)
		closers = append(closers, func() { _ = idx.Close() })
		log.Info("qdrant index ready",
			slog.String("host", host),
			slog.String("collection", getEnvOrDefault("QDRANT_COLLECTION", "graphrag-chunks")),
		)
	}

	engine, err := rag.New(graphStore, emb, vectorIndex, rag.Config{
		ChunkSize:      getEnvInt("GRAPHRAG_CHUNK_SIZE", 0),
		ChunkOverlap:   getEnvInt("GRAPHRAG_CHUNK_OVERLAP", 0),
		CacheCapacity:  getEnvInt("GRAPHRAG_CACHE_CAPACITY", 0),
		Alpha:          getEnvFloatPtr("GRAPHRAG_ALPHA"),
		ScoreThreshold: getEnvFloat("GRAPHRAG_SCORE_THRESHOLD", 0),
		Dimensions:     dimensions,
		BranchTimeout:  time.Duration(getEnvInt("GRAPHRAG_BRANCH_TIMEOUT_MS", 0)) * time.Millisecond,
		Registry:       registerer,
		Logger:         log,
	})
	if err != nil {
		closeAll()
		return nil, nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return engine, pingers, closeAll, nil
}

// buildAnswerer wires the question-answering layer on top of an engine: the
// chat model from MODEL_PROVIDER and the optional SQLite answer history.
// The returned closer releases the history store.
func buildAnswerer(ctx context.Context, engine *rag.Engine, log *slog.Logger) (*rag.Answerer, func(), error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

	closeHistory := func() {}

	// Open answer history store. GRAPHRAG_HISTORY_DB overrides the default
	// path (~/.graphrag/history.db). Set to "disabled" to turn it off.
	var history rag.History
	dbPath := os.Getenv("GRAPHRAG_HISTORY_DB")
	if dbPath != "disabled" {
		if dbPath == "" {
			dbPath, err = store.DefaultDBPath()
			if err != nil {
				log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
				dbPath = ""
			}
		}
		if dbPath != "" {
			hs, hsErr := store.Open(dbPath)
			if hsErr != nil {
				log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
			} else {
				history = hs
				closeHistory = func() { _ = hs.Close() }
				log.Info("history: store opened", slog.String("path", dbPath))
			}
		}
	} else {
		log.Info("history: disabled via GRAPHRAG_HISTORY_DB=disabled")
	}

	answerer, err := rag.NewAnswerer(engine, chatModel, rag.AnswererConfig{
		MaxContextTokens: getEnvInt("GRAPHRAG_MAX_CONTEXT_TOKENS", 0),
		TopK:             getEnvInt("GRAPHRAG_TOP_K", 0),
		History:          history,
	})
	if err != nil {
		closeHistory()
		return nil, nil, fmt.Errorf("failed to create answerer: %w", err)
	}

	return answerer, closeHistory, nil
}

// parseSearchMode validates a --mode flag value, treating empty as hybrid.
func parseSearchMode(s string) (rag.SearchMode, error) {
	if s == "" {
		return rag.ModeHybrid, nil
	}
	mode := rag.SearchMode(s)
	if !mode.Valid() {
		return "", fmt.Errorf("invalid search mode %q (must be vector, keyword, or hybrid)", s)
	}
	return mode, nil
}

// getEnvOrDefault returns the env var value or fallback when unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloatPtr returns a pointer to the env var parsed as float64, or nil
// when unset or unparseable. Used where an explicit 0 must stay
// distinguishable from "not configured" (GRAPHRAG_ALPHA=0 is pure keyword
// ranking, unset means the engine default).
func getEnvFloatPtr(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// getEnvFloat returns the env var parsed as float64, or fallback when unset
// or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
