package main

import (
	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/types"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-summarize and re-publish every published entry",
	Long: `Force-refresh: every currently published ticket is re-summarized and
re-published even when nothing changed. Useful after prompt or backend
changes that should propagate to existing entries.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconciliation(cmd.Context(), types.ModeForceRefresh, 0, "")
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
