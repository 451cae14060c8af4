package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/feedbackops/kbsync/internal/config"
)

var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "List the configured bot backends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		bots, err := config.LoadBots(cfg.BotsFile)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(bots))
		for name := range bots {
			names = append(names, name)
		}
		sort.Strings(names)

		if jsonOutput {
			out := make([]map[string]string, 0, len(names))
			for _, name := range names {
				out = append(out, map[string]string{"name": name, "type": string(bots[name].Type)})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Println(headerStyle.Render("Configured bots"))
		for _, name := range names {
			marker := " "
			if name == cfg.Summarizer || name == cfg.Publisher {
				marker = okStyle.Render("*")
			}
			fmt.Printf("  %s %-20s %s\n", marker, name, dimStyle.Render(string(bots[name].Type)))
		}
		fmt.Println(dimStyle.Render("  * currently selected summarizer/publisher"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(botsCmd)
}
