package main

import (
	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/types"
)

var testUpdateCmd = &cobra.Command{
	Use:   "test-update TICKET-KEY",
	Short: "Run the pipeline for a single ticket",
	Long: `Diagnostic run restricted to one ticket: summarize and publish (or
re-publish) just that ultimate parent, leaving every other record untouched.
The key must resolve to an ultimate-parent candidate of the configured
parent query.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconciliation(cmd.Context(), types.ModeTestUpdate, 0, args[0])
	},
}

func init() {
	rootCmd.AddCommand(testUpdateCmd)
}
