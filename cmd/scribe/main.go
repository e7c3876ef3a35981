// Command scribe runs the Scribe chat server and its companion tooling.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Default logger until the configured one takes over in serve.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "scribe",
		Short:   "Streaming chat server with artifact generation",
		Long:    "Scribe runs LLM-backed conversations over SSE, persists the history,\nand serves the documents the model produces along the way.",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildConversationsCmd())
	rootCmd.AddCommand(buildArtifactCmd())
	rootCmd.AddCommand(buildSkillsCmd())

	return rootCmd
}
