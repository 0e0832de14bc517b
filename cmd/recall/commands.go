package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildIngestCmd creates the "ingest" command group.
func buildIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest content into memory",
	}
	cmd.AddCommand(
		buildIngestFileCmd(),
		buildIngestTranscriptCmd(),
	)
	return cmd
}

func buildIngestFileCmd() *cobra.Command {
	var (
		configPath string
		key        string
	)
	cmd := &cobra.Command{
		Use:   "file [path]",
		Short: "Chunk, embed, and analyze a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestFile(cmd, configPath, args[0], key)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Document key (defaults to the file name)")
	return cmd
}

func buildIngestTranscriptCmd() *cobra.Command {
	var (
		configPath     string
		username       string
		conversationID string
	)
	cmd := &cobra.Command{
		Use:   "transcript [messages.json]",
		Short: "Extract and store user facts from a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestTranscript(cmd, configPath, args[0], username, conversationID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&username, "user", "u", "", "Username owning the extracted facts (required)")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation ID (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func buildQueryCmd() *cobra.Command {
	var (
		configPath string
		owner      string
		kind       string
		topK       int
	)
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Search memory by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, configPath, args[0], owner, kind, topK)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner key to query (required)")
	cmd.Flags().StringVar(&kind, "store", "facts", "Store kind (facts, documents, environments)")
	cmd.Flags().IntVar(&topK, "limit", 0, "Maximum results (0 uses the configured top_k)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func buildStatsCmd() *cobra.Command {
	var (
		configPath string
		owner      string
		kind       string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stored item counts and source histogram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, configPath, owner, kind)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner key (required)")
	cmd.Flags().StringVar(&kind, "store", "facts", "Store kind (facts, documents, environments)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func buildWatchCmd() *cobra.Command {
	var (
		configPath string
		interval   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the bucket and ingest new objects",
		Long: `Watch polls the configured bucket and routes new objects:
conversation transcripts (*/messages.json) go through fact extraction,
uploaded documents (under uploads/) go through chunked analysis.
Index and analysis objects the service writes itself are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, configPath, interval)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Poll interval")
	return cmd
}
