package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/types"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive menu over the same operations as the CLI commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		for {
			var choice string
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("kbsync").
						Description("Knowledge base synchronization").
						Options(
							huh.NewOption("Initialize (rebuild from scratch)", "init"),
							huh.NewOption("Update (reconcile to target size)", "update"),
							huh.NewOption("Resize (change target size)", "resize"),
							huh.NewOption("Force refresh (re-publish everything)", "refresh"),
							huh.NewOption("Test a single ticket", "test-update"),
							huh.NewOption("Show status", "status"),
							huh.NewOption("List bots", "bots"),
							huh.NewOption("Quit", "quit"),
						).
						Value(&choice),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			var err error
			switch choice {
			case "init":
				err = initCmd.RunE(cmd, nil)
			case "update":
				err = runReconciliation(ctx, types.ModeUpdate, 0, "")
			case "resize":
				var sizeStr string
				input := huh.NewForm(huh.NewGroup(
					huh.NewInput().
						Title("New target size").
						Validate(func(s string) error {
							n, convErr := strconv.Atoi(s)
							if convErr != nil || n <= 0 {
								return fmt.Errorf("enter a positive integer")
							}
							return nil
						}).
						Value(&sizeStr),
				))
				if err = input.Run(); err == nil {
					n, _ := strconv.Atoi(sizeStr)
					err = runReconciliation(ctx, types.ModeResize, n, "")
				}
			case "refresh":
				err = runReconciliation(ctx, types.ModeForceRefresh, 0, "")
			case "test-update":
				var key string
				input := huh.NewForm(huh.NewGroup(
					huh.NewInput().Title("Ticket key").Value(&key),
				))
				if err = input.Run(); err == nil && key != "" {
					err = runReconciliation(ctx, types.ModeTestUpdate, 0, key)
				}
			case "status":
				err = statusCmd.RunE(cmd, nil)
			case "bots":
				err = botsCmd.RunE(cmd, nil)
			case "quit":
				return nil
			}
			if err != nil {
				fmt.Println(failStyle.Render("Error: " + err.Error()))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}
