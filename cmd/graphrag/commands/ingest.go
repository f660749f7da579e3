package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbforge/graphrag-go/internal/logging"
)

// NewIngestCmd constructs the `graphrag ingest` command, which chunks,
// embeds, and stores a document in the knowledge base.
func NewIngestCmd() *cobra.Command {
	var docID string
	var meta []string

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a document into the knowledge base",
		Long: `Chunk, embed, and store a document in the Neo4j knowledge base.

Reads the document from the given file, or from stdin when the file argument
is "-" or omitted. Metadata is attached as flat key=value pairs and is
returned with every search result that matches the document's chunks.

Required environment variables:
  NEO4J_URI            Neo4j connection URI (default: neo4j://localhost:7687)
  NEO4J_PASSWORD       Neo4j password
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Embedding-specific overrides (see README)

Examples:
  graphrag ingest notes.md
  graphrag ingest --id runbook-v2 --meta team=sre --meta year=2026 runbook.md
  cat report.txt | graphrag ingest -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			content, source, err := readDocument(args)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("ingest: document content is empty")
			}

			metadata, err := parseMetadata(meta)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			engine, _, closeEngine, err := buildEngine(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeEngine()

			id, chunks, err := engine.AddDocument(ctx, content, metadata, docID)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("document ingested",
				slog.String("doc_id", id),
				slog.String("source", source),
				slog.Int("chunks", chunks),
			)
			fmt.Printf("ingested %s: document %s (%d chunks)\n", source, id, chunks)
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "id", "", "Document ID (default: generated UUID)")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "Metadata key=value pair (repeatable)")

	return cmd
}

// readDocument loads the document content from the file argument, or from
// stdin when the argument is "-" or absent.
func readDocument(args []string) (content, source string, err error) {
	if len(args) == 0 || args[0] == "-" {
		data, rerr := io.ReadAll(os.Stdin)
		if rerr != nil {
			return "", "", fmt.Errorf("failed to read stdin: %w", rerr)
		}
		return string(data), "stdin", nil
	}

	data, rerr := os.ReadFile(args[0])
	if rerr != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", args[0], rerr)
	}
	return string(data), args[0], nil
}

// parseMetadata converts repeated key=value flags into a metadata map.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q (expected key=value)", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
