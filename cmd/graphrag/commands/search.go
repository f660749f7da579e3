package commands

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbforge/graphrag-go/internal/logging"
)

// NewSearchCmd constructs the `graphrag search` command, which runs a hybrid
// search and prints the ranked chunks.
func NewSearchCmd() *cobra.Command {
	var topK int
	var mode string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge base",
		Long: `Run a search against the knowledge base and print the ranked chunks.

Hybrid mode (the default) runs vector and keyword search concurrently and
merges the two rankings. If one branch fails the surviving branch's results
are returned and marked degraded.

Examples:
  graphrag search "incident response for database failover"
  graphrag search --mode keyword --top-k 10 "connection pool exhausted"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			searchMode, err := parseSearchMode(mode)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			engine, _, closeEngine, err := buildEngine(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer closeEngine()

			query := strings.Join(args, " ")
			rs, err := engine.Search(ctx, query, topK, searchMode)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if rs.Degraded {
				fmt.Println("warning: one search branch failed, results are degraded")
			}
			if len(rs.Results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, r := range rs.Results {
				fmt.Printf("%d. [%.4f] %s (document %s)\n", i+1, r.Score, r.ChunkID, r.DocID)
				fmt.Printf("   %s\n", strings.ReplaceAll(strings.TrimSpace(r.Text), "\n", "\n   "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results to return (default: 5)")
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "Search mode: vector, keyword, or hybrid")

	return cmd
}
