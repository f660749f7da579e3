package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbforge/graphrag-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs the
	// GET /metrics endpoint. If nil a fresh registry is created.
	Registry *prometheus.Registry
}

// engineAPI is the retrieval surface the handlers call. *rag.Engine satisfies
// it; tests inject a fake.
type engineAPI interface {
	// AddDocument ingests content and returns the document ID and chunk count.
	AddDocument(ctx context.Context, content string, metadata map[string]string, docID string) (string, int, error)
	// Search returns the ranked results for query under the given mode.
	Search(ctx context.Context, query string, k int, mode rag.SearchMode) (*rag.ResultSet, error)
	// DeleteDocument removes one document and its chunks.
	DeleteDocument(ctx context.Context, docID string) error
	// Stats summarizes the corpus and cache state.
	Stats(ctx context.Context) (*rag.Stats, error)
	// Clear removes all documents and chunks.
	Clear(ctx context.Context) error
}

// asker is the answering surface used by POST /api/answer. *rag.Answerer
// satisfies it; tests inject a fake. May be nil when no chat model is
// configured, in which case the endpoint returns 503.
type asker interface {
	Ask(ctx context.Context, question string, mode rag.SearchMode) (*rag.Answer, error)
}

// Server is the HTTP server that exposes the retrieval engine as a REST API.
type Server struct {
	// engine handles ingest, search, and corpus management.
	engine engineAPI
	// answerer handles retrieval-augmented answering; nil disables /api/answer.
	answerer asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// ingestRequest is the JSON body for POST /api/documents.
type ingestRequest struct {
	// Content is the raw document text to ingest.
	Content string `json:"content"`
	// DocID optionally fixes the document ID; generated when empty.
	DocID string `json:"doc_id,omitempty"`
	// Metadata holds flat scalar key-value pairs attached to the document.
	// Nested objects and arrays are rejected.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ingestResponse is the JSON response for POST /api/documents.
type ingestResponse struct {
	// DocID is the ID of the stored document.
	DocID string `json:"doc_id"`
	// Chunks is the number of chunks the document was split into.
	Chunks int `json:"chunks"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the search text.
	Query string `json:"query"`
	// TopK is the number of results to return; the engine default applies
	// when zero.
	TopK int `json:"top_k,omitempty"`
	// Mode selects vector, keyword, or hybrid search; defaults to hybrid.
	Mode string `json:"mode,omitempty"`
}

// answerRequest is the JSON body for POST /api/answer.
type answerRequest struct {
	// Question is the natural-language question to answer.
	Question string `json:"question"`
	// Mode selects the retrieval mode; defaults to hybrid.
	Mode string `json:"mode,omitempty"`
}

// errorResponse is the JSON error body for all 4xx/5xx API responses.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
}
