package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbforge/graphrag-go/internal/logging"
)

// NewClearCmd constructs the `graphrag clear` subcommand, which deletes every
// document and chunk from the knowledge base.
func NewClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all documents from the knowledge base",
		Long: `Delete every document and chunk from the knowledge base.

This also clears the mirrored vector index (when configured) and the query
cache. The operation is irreversible and requires --yes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clear: refusing to delete the knowledge base without --yes")
			}

			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			engine, _, closeEngine, err := buildEngine(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			defer closeEngine()

			if err := engine.Clear(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}

			fmt.Println("knowledge base cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion of all documents")

	return cmd
}
