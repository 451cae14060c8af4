package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/engine"
	"github.com/feedbackops/kbsync/internal/types"
)

var initLimit int

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "First-time population of the knowledge base",
	Long: `Resolve the ticket hierarchy and publish the top N ultimate parents.

Any previously published entries are retracted first, so init always
produces a knowledge base that exactly matches the current top N.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		// Clear prior state so the init plan starts from an empty base.
		published, err := a.store.ListPublished(ctx)
		if err != nil {
			return err
		}
		if len(published) > 0 {
			keys := make([]string, 0, len(published))
			for _, rec := range published {
				if rec.Status == types.StatusPublished {
					keys = append(keys, rec.Key)
				}
			}
			log.Info("retiring previously published entries", "count", len(keys))
			report, err := a.engine.Execute(ctx, &types.Plan{Mode: types.ModeInit, ToRetire: keys})
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				renderReport(report)
				return fmt.Errorf("could not clear %d previously published entries", report.Failed)
			}
			if err := a.store.Purge(ctx); err != nil {
				return err
			}
		}

		candidates, err := a.resolveCandidates(ctx)
		if err != nil {
			return err
		}

		plan, err := engine.Reconcile(engine.Request{Mode: types.ModeInit, TargetSize: targetSize(a, initLimit)}, candidates, nil)
		if err != nil {
			return err
		}

		report, err := a.engine.Execute(ctx, plan)
		if err != nil {
			return err
		}
		renderReport(report)
		if report.Failed > 0 {
			return fmt.Errorf("%d entries failed", report.Failed)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().IntVar(&initLimit, "limit", 0, "number of top candidates to publish (default: config target_size)")
	rootCmd.AddCommand(initCmd)
}

// targetSize prefers the command-line limit over the configured default.
func targetSize(a *app, limit int) int {
	if limit > 0 {
		return limit
	}
	return a.cfg.TargetSize
}
