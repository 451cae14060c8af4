// kbsync keeps an external knowledge base in sync with a Jira duplicate-link
// hierarchy: it resolves ultimate-parent feedback tickets, summarizes each
// ticket cluster through a configured bot backend, and reconciles the
// published set against a target size.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/logging"
	"github.com/feedbackops/kbsync/internal/telemetry"
)

// Version is stamped at build time via -ldflags.
var Version = "0.3.0-dev"

var (
	cfgPath        string
	dbPath         string
	summarizerName string
	publisherName  string
	verboseFlag    bool
	jsonOutput     bool

	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kbsync",
	Short: "Sync a knowledge base with a Jira duplicate-link hierarchy",
	Long: `kbsync resolves the ultimate-parent tickets of a Jira duplicate-link
graph, ranks them by how many tickets duplicate them, and keeps the top N
published in a remote knowledge base through a configured bot backend.

Configuration lives in config.yaml (or KBSYNC_*/JIRA_* environment
variables) and a bots.yaml file naming the backend bots.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log = logging.Setup(verboseFlag, os.Getenv("KBSYNC_LOG_FILE"))
		if err := telemetry.Init(cmd.Context(), "kbsync", Version); err != nil {
			// Telemetry is best effort; a broken exporter must not block a run.
			log.Warn("telemetry init failed", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml (default: search cwd and user config dir)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the state database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&summarizerName, "summarizer", "", "named bot to use for summarization (overrides config)")
	rootCmd.PersistentFlags().StringVar(&publisherName, "publisher", "", "named bot to use for publishing (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit the run report as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
