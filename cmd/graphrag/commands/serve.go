package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbforge/graphrag-go/internal/logging"
	"github.com/kbforge/graphrag-go/internal/server"
	"github.com/kbforge/graphrag-go/internal/tracing"
)

// NewServeCmd constructs the `graphrag serve` command, which starts the HTTP
// API server over the knowledge base.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the GraphRAG HTTP API server",
		Long: `Start the GraphRAG HTTP server on localhost.

The server exposes a REST API for document ingestion, hybrid search, and
question answering, plus health, readiness, and Prometheus metrics endpoints.

Required environment variables:
  NEO4J_URI            Neo4j connection URI (default: neo4j://localhost:7687)
  NEO4J_PASSWORD       Neo4j password
  QDRANT_HOST          Optional Qdrant host for the mirrored vector index
  MODEL_PROVIDER       Answering backend: ollama, openai, azure, bedrock, gemini
  GRAPHRAG_API_KEY     Bearer token required on /api/* routes (unset disables auth)

Examples:
  graphrag serve
  graphrag serve --port 9090
  MODEL_PROVIDER=openai graphrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			// One registry backs the engine, pool, and HTTP metrics so
			// /metrics exposes all of them.
			registry := prometheus.NewRegistry()

			engine, pingers, closeEngine, err := buildEngine(ctx, log, registry)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeEngine()

			// Answering is optional: a missing model provider degrades
			// /api/answer to 503 instead of refusing to serve retrieval.
			srvCfg := &server.Config{
				Host:     host,
				Port:     port,
				Logger:   log,
				Pingers:  pingers,
				APIKey:   os.Getenv("GRAPHRAG_API_KEY"),
				Registry: registry,
			}

			var srv *server.Server
			answerer, closeHistory, ansErr := buildAnswerer(ctx, engine, log)
			if ansErr != nil {
				log.Warn("answering disabled", slog.Any("error", ansErr))
				srv, err = server.New(engine, nil, srvCfg)
			} else {
				defer closeHistory()
				srv, err = server.New(engine, answerer, srvCfg)
			}
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
