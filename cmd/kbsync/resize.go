package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/types"
)

var resizeCmd = &cobra.Command{
	Use:   "resize N",
	Short: "Change the published set to exactly N entries",
	Long: `Grow or shrink the published set to exactly N top-ranked tickets.
When shrinking, the lowest-ranked published tickets are retracted before any
new entries are added, so the remote knowledge base never transiently
exceeds the new size.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("resize expects a positive integer, got %q", args[0])
		}
		return runReconciliation(cmd.Context(), types.ModeResize, n, "")
	},
}

func init() {
	rootCmd.AddCommand(resizeCmd)
}
