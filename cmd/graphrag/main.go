// Command graphrag is the entry point for the GraphRAG knowledge engine.
// It provides a CLI interface (via Cobra) for ingesting documents, searching
// the knowledge base, and asking questions, plus an HTTP server mode.
package main

import (
	"fmt"
	"os"

	"github.com/kbforge/graphrag-go/cmd/graphrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
