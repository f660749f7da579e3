// Package commands defines all Cobra CLI commands for the graphrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/kbforge/graphrag-go/internal/audit"
	"github.com/kbforge/graphrag-go/internal/config"
	"github.com/kbforge/graphrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "graphrag",
		Short: "GraphRAG — hybrid retrieval over a graph knowledge base",
		Long: `GraphRAG is a retrieval-augmented knowledge engine backed by Neo4j.

Documents are chunked, embedded, and stored as a graph of document and chunk
nodes. Queries run vector and keyword search concurrently and merge the two
rankings, and an optional LLM layer answers questions grounded in the
retrieved chunks.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.graphrag/config.yaml).
See 'graphrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.graphrag/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewSearchCmd(),
		NewAskCmd(),
		NewStatsCmd(),
		NewClearCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
