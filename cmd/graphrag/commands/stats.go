package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbforge/graphrag-go/internal/logging"
)

// NewStatsCmd constructs the `graphrag stats` subcommand.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print knowledge base statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			engine, _, closeEngine, err := buildEngine(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer closeEngine()

			stats, err := engine.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			fmt.Printf("documents:          %d\n", stats.DocumentCount)
			fmt.Printf("chunks:             %d\n", stats.ChunkCount)
			fmt.Printf("avg chunks per doc: %.2f\n", stats.AvgChunksPerDoc)
			fmt.Printf("cached queries:     %d\n", stats.CacheSize)
			return nil
		},
	}
}
