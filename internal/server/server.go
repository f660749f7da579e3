// Package server implements the HTTP server that exposes the retrieval
// engine as a REST API: document ingest, hybrid search, answering, corpus
// stats, and operational endpoints (health, readiness, metrics).
// The server is started by the `graphrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kbforge/graphrag-go/internal/logging"
	"github.com/kbforge/graphrag-go/internal/rag"
)

// New constructs a Server from the provided engine, answerer, and config.
// answerer may be nil, which disables POST /api/answer.
func New(engine engineAPI, answerer asker, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover ingest of large documents and generation.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		engine:   engine,
		answerer: answerer,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.Registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: GRAPHRAG_API_KEY not set — API authentication is DISABLED")
	}

	// Protected API routes: rate limit, then auth, then the handler.
	protect := func(name string, h http.HandlerFunc) http.Handler {
		return rl.middleware(authMiddleware(cfg.APIKey, s.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/documents", protect("ingest", s.handleIngest))
	mux.Handle("DELETE /api/documents/{id}", protect("delete_document", s.handleDeleteDocument))
	mux.Handle("DELETE /api/documents", protect("clear", s.handleClear))
	mux.Handle("POST /api/search", protect("search", s.handleSearch))
	mux.Handle("POST /api/answer", protect("answer", s.handleAnswer))
	mux.Handle("GET /api/stats", protect("stats", s.handleStats))
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// instrument wraps a handler with per-endpoint request count and latency
// metrics, labelled by the logical handler name rather than the raw path.
func (s *Server) instrument(name string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		s.metrics.httpInFlight.Inc()
		start := time.Now()
		h(rw, r)
		s.metrics.httpInFlight.Dec()
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}

// handleIngest handles POST /api/documents. The document is chunked,
// embedded, and stored; the response carries the document ID and chunk count.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	metadata, err := flattenMetadata(req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docID, chunks, err := s.engine.AddDocument(r.Context(), req.Content, metadata, req.DocID)
	if err != nil {
		s.writeEngineError(w, r, "ingest failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{DocID: docID, Chunks: chunks})
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "mode must be vector, keyword, or hybrid")
		return
	}

	rs, err := s.engine.Search(r.Context(), req.Query, req.TopK, mode)
	if err != nil {
		s.writeEngineError(w, r, "search failed", err)
		return
	}

	writeJSON(w, http.StatusOK, rs)
}

// handleAnswer handles POST /api/answer. Returns 503 when no chat model is
// configured. A generation failure is a 200 with the failure marker — the
// retrieved sources still have value.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "answering is not configured")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "mode must be vector, keyword, or hybrid")
		return
	}

	ans, err := s.answerer.Ask(r.Context(), req.Question, mode)
	if err != nil {
		s.writeEngineError(w, r, "answer failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ans)
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "stats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if docID == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	if err := s.engine.DeleteDocument(r.Context(), docID); err != nil {
		s.writeEngineError(w, r, "delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClear handles DELETE /api/documents — removes the entire corpus.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.writeEngineError(w, r, "clear failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps engine errors to HTTP status codes and logs the
// failure with its request-scoped logger.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromContext(r.Context()).Error(msg, slog.Any("error", err))

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rag.ErrPoolExhausted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrConfig):
		status = http.StatusBadRequest
	}
	writeError(w, status, fmt.Sprintf("%s: %v", msg, err))
}

// parseMode maps the wire mode string to a SearchMode. An empty string
// selects hybrid. Returns false for unknown modes.
func parseMode(mode string) (rag.SearchMode, bool) {
	if mode == "" {
		return rag.ModeHybrid, true
	}
	m := rag.SearchMode(mode)
	if !m.Valid() {
		return "", false
	}
	return m, true
}

// flattenMetadata validates that all metadata values are scalars and renders
// them as strings. Nested objects and arrays are rejected so metadata stays
// queryable as flat graph properties.
func flattenMetadata(meta map[string]any) (map[string]string, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
			// Null values are dropped rather than stored as empty strings.
		default:
			return nil, fmt.Errorf("metadata key %q must be a flat scalar value", k)
		}
	}
	return out, nil
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
