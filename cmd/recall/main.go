// Package main provides the CLI entry point for recall, a semantic
// memory service.
//
// Recall ingests documents and conversation transcripts, extracts user
// facts, embeds everything, and answers similarity queries over the
// accumulated memory.
//
// # Basic Usage
//
// Ingest a document:
//
//	recall ingest file ./report.txt --key uploads/report.txt
//
// Ingest a conversation transcript:
//
//	recall ingest transcript ./messages.json --user alice --conversation conv-42
//
// Query memory:
//
//	recall query "what does the user prefer" --owner alice
//
// Watch a bucket for new objects:
//
//	recall watch --config recall.yaml
//
// # Environment Variables
//
//   - RECALL_CONFIG: Path to configuration file
//   - OPENAI_API_KEY: OpenAI API key for embeddings
//   - ANTHROPIC_API_KEY: Anthropic API key for analysis and fact extraction
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "Recall - semantic memory over blob storage",
		Long: `Recall ingests documents and conversation transcripts into a
deduplicated vector memory and answers similarity queries over it.

Embeddings: OpenAI. Analysis and fact extraction: Anthropic.
Storage backends: S3-compatible object storage, in-memory (development)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildIngestCmd(),
		buildQueryCmd(),
		buildStatsCmd(),
		buildWatchCmd(),
	)
	return rootCmd
}
