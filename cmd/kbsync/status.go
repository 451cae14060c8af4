package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/store"
	"github.com/feedbackops/kbsync/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show published counts and the last run summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		records, err := st.ListPublished(ctx)
		if err != nil {
			return err
		}

		byStatus := map[types.PublishStatus]int{}
		for _, rec := range records {
			byStatus[rec.Status]++
		}

		lastRun, err := st.LastRun(ctx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"records":   len(records),
				"by_status": byStatus,
				"last_run":  lastRun,
			})
		}

		fmt.Println(headerStyle.Render("Knowledge base state"))
		fmt.Printf("  records: %d", len(records))
		for _, s := range []types.PublishStatus{types.StatusPublished, types.StatusPending, types.StatusFailed, types.StatusRetired} {
			if byStatus[s] > 0 {
				fmt.Printf("  %s %d", s, byStatus[s])
			}
		}
		fmt.Println()

		if lastRun == nil {
			fmt.Println(dimStyle.Render("  no runs recorded yet"))
			return nil
		}
		fmt.Printf("  last run: %s (target %d) at %s, processed %d, failed %d, took %s\n",
			lastRun.Mode, lastRun.TargetSize,
			lastRun.StartedAt.Local().Format("2006-01-02 15:04:05"),
			lastRun.Processed, lastRun.Failed, lastRun.Duration)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
