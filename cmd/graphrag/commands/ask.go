package commands

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbforge/graphrag-go/internal/logging"
)

// NewAskCmd constructs the `graphrag ask` command, which retrieves relevant
// chunks for a question and generates a grounded answer.
func NewAskCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question answered from the knowledge base",
		Long: `Ask a natural language question answered from the knowledge base.

Relevant chunks are retrieved with hybrid search and passed to the configured
model provider as grounding context. The answer cites the source chunks it
was generated from.

Examples:
  graphrag ask "what is our database failover procedure?"
  MODEL_PROVIDER=openai graphrag ask "how are ingest errors rolled back?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			searchMode, err := parseSearchMode(mode)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			engine, _, closeEngine, err := buildEngine(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeEngine()

			answerer, closeHistory, err := buildAnswerer(ctx, engine, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeHistory()

			answer, err := answerer.Ask(ctx, strings.Join(args, " "), searchMode)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if answer.Degraded {
				fmt.Println("warning: one search branch failed, context is degraded")
			}
			fmt.Println(answer.Answer)
			if len(answer.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range answer.Sources {
					fmt.Printf("  - %s (document %s, score %.4f)\n", src.ChunkID, src.DocID, src.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "hybrid", "Search mode: vector, keyword, or hybrid")

	return cmd
}
