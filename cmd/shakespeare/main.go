// Command shakespeare runs the agent session orchestrator as a local
// process: a "serve" REPL for interactive testing and a "replay" command
// for walking a persisted history file through the Observer Bus. Grounded
// on the ancestor codebase's cmd/nexus cobra root-command wiring,
// trimmed to the two commands this spec's scope supports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "shakespeare",
		Short: "Run the Shakespeare agent session orchestrator",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML or JSON5, $include-aware)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newReplayCmd())
	return root
}
