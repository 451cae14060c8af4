package main

import (
	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/types"
)

var updateLimit int

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Reconcile the published set against the current hierarchy",
	Long: `Re-resolve the ticket hierarchy and bring the knowledge base back to
the target size: new top-ranked tickets are added, tickets whose descendant
set changed are re-summarized, and tickets that fell out of the top N are
retracted. An up-to-date base results in no backend calls at all.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconciliation(cmd.Context(), types.ModeUpdate, updateLimit, "")
	},
}

func init() {
	updateCmd.Flags().IntVar(&updateLimit, "limit", 0, "target size (default: config target_size)")
	rootCmd.AddCommand(updateCmd)
}
