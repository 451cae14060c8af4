package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/feedbackops/kbsync/internal/bot"
	"github.com/feedbackops/kbsync/internal/config"
	"github.com/feedbackops/kbsync/internal/engine"
	"github.com/feedbackops/kbsync/internal/hierarchy"
	"github.com/feedbackops/kbsync/internal/jira"
	"github.com/feedbackops/kbsync/internal/store"
	"github.com/feedbackops/kbsync/internal/types"
)

// app bundles the wired collaborators for one command invocation.
type app struct {
	cfg    *config.Config
	bots   map[string]bot.Config
	store  store.Store
	source *jira.Source
	engine *engine.Engine
}

// loadConfig resolves the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if summarizerName != "" {
		cfg.Summarizer = summarizerName
	}
	if publisherName != "" {
		cfg.Publisher = publisherName
	}
	return cfg, nil
}

// buildApp wires the store, ticket source and backend pair for a
// reconciliation run.
func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bots, err := config.LoadBots(cfg.BotsFile)
	if err != nil {
		return nil, err
	}

	sumCfg, ok := bots[cfg.Summarizer]
	if !ok {
		return nil, fmt.Errorf("summarizer bot %q not found in %s", cfg.Summarizer, cfg.BotsFile)
	}
	pubCfg, ok := bots[cfg.Publisher]
	if !ok {
		return nil, fmt.Errorf("publisher bot %q not found in %s", cfg.Publisher, cfg.BotsFile)
	}

	summarizer, err := bot.NewSummarizer(sumCfg)
	if err != nil {
		return nil, err
	}
	publisher, err := bot.NewPublisher(pubCfg)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	client := jira.NewClient(cfg.Jira.URL, cfg.Jira.Username, cfg.Jira.APIToken)
	source := jira.NewSource(client, cfg.Jira.ParentQuery, log)

	return &app{
		cfg:    cfg,
		bots:   bots,
		store:  st,
		source: source,
		engine: engine.New(st, source, summarizer, publisher, log),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn("closing state database", "error", err)
	}
}

// resolveCandidates fetches the parent query results and resolves the ranked
// ultimate-parent list.
func (a *app) resolveCandidates(ctx context.Context) ([]types.Candidate, error) {
	tickets, err := a.source.FetchCandidates(ctx)
	if err != nil {
		return nil, err
	}
	candidates, cycles := hierarchy.Resolve(tickets, log)
	for _, cycle := range cycles {
		fmt.Fprintf(os.Stderr, "warning: duplicate-link cycle under %s (participants: %v)\n", cycle.Root, cycle.Participants)
	}
	return candidates, nil
}

// runReconciliation is the shared run path behind update, resize, refresh
// and test-update. limit overrides the configured target size when positive;
// a force-refresh with no explicit limit covers everything currently
// published.
func runReconciliation(ctx context.Context, mode types.Mode, limit int, testKey string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	candidates, err := a.resolveCandidates(ctx)
	if err != nil {
		return err
	}

	published, err := a.store.ListPublished(ctx)
	if err != nil {
		return err
	}

	req := engine.Request{Mode: mode, TargetSize: targetSize(a, limit), TestKey: testKey}
	if mode == types.ModeForceRefresh && limit <= 0 {
		count := 0
		for _, rec := range published {
			if rec.Status == types.StatusPublished {
				count++
			}
		}
		if count == 0 {
			fmt.Println("Nothing published yet; run 'kbsync init' first.")
			return nil
		}
		req.TargetSize = count
	}

	plan, err := engine.Reconcile(req, candidates, published)
	if err != nil {
		return err
	}

	log.Info("plan computed", "mode", plan.Mode,
		"add", len(plan.ToAdd), "refresh", len(plan.ToRefresh),
		"retire", len(plan.ToRetire), "unchanged", len(plan.Unchanged))

	report, err := a.engine.Execute(ctx, plan)
	if err != nil {
		return err
	}

	renderReport(report)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d entries failed", report.Failed, report.Failed+report.Succeeded())
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func renderReport(report *types.Report) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Run complete (%s, %s)", report.Mode, report.Duration.Round(time.Millisecond))))
	fmt.Printf("  %s  added %d, refreshed %d, retired %d, unchanged %d\n",
		okStyle.Render("✓"), report.Added, report.Refreshed, report.Retired, report.Unchanged)
	if report.Failed > 0 {
		fmt.Printf("  %s  %d failed:\n", failStyle.Render("✗"), report.Failed)
		for _, f := range report.Failures {
			fmt.Printf("     %s %s: %s\n", f.Key, dimStyle.Render("("+f.Action+")"), f.Reason)
		}
	}
}
