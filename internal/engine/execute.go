package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/feedbackops/kbsync/internal/bot"
	"github.com/feedbackops/kbsync/internal/store"
	"github.com/feedbackops/kbsync/internal/telemetry"
	"github.com/feedbackops/kbsync/internal/types"
)

// SummaryLoader resolves summary text for descendant ticket keys when the
// engine builds summarization prompts.
type SummaryLoader interface {
	FetchSummaries(ctx context.Context, keys []string) (map[string]string, error)
}

// Engine executes reconciliation plans: sequential, one backend operation in
// flight per ticket, with each store write committed immediately after its
// backend call so an interrupted run loses at most the in-flight entry.
type Engine struct {
	store      store.Store
	loader     SummaryLoader
	summarizer bot.Summarizer
	publisher  bot.Publisher
	log        *slog.Logger
	now        func() time.Time
}

// New assembles an engine over the given store, descendant loader and backend
// pair.
func New(st store.Store, loader SummaryLoader, summarizer bot.Summarizer, publisher bot.Publisher, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	engineMetricsOnce.Do(initEngineMetrics)
	return &Engine{
		store:      st,
		loader:     loader,
		summarizer: summarizer,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
	}
}

// engineMetrics holds lazily-initialized OTel instruments for plan execution.
var engineMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

var engineMetricsOnce sync.Once

func initEngineMetrics() {
	m := telemetry.Meter("github.com/feedbackops/kbsync/engine")
	engineMetrics.operations, _ = m.Int64Counter("kbsync.engine.operations",
		metric.WithDescription("Plan entries processed, by action and outcome"),
		metric.WithUnit("{entry}"),
	)
	engineMetrics.duration, _ = m.Float64Histogram("kbsync.engine.run.duration",
		metric.WithDescription("Plan execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func recordOperation(ctx context.Context, action string, err error) {
	if engineMetrics.operations == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	engineMetrics.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kbsync.action", action),
		attribute.String("kbsync.outcome", outcome),
	))
}

// Execute runs the plan to completion. Backend failures are isolated per
// entry and accumulated into the report; store failures abort the run with an
// error since execution cannot continue without consistent published state.
//
// Retirements run before additions so a shrinking target never transiently
// exceeds its size in the remote knowledge base.
func (e *Engine) Execute(ctx context.Context, plan *types.Plan) (*types.Report, error) {
	started := e.now()
	report := &types.Report{Mode: plan.Mode, Unchanged: len(plan.Unchanged)}

	runErr := e.run(ctx, plan, report)

	report.Duration = e.now().Sub(started)
	if engineMetrics.duration != nil {
		engineMetrics.duration.Record(ctx, float64(report.Duration.Milliseconds()),
			metric.WithAttributes(attribute.String("kbsync.mode", string(plan.Mode))))
	}

	if recErr := e.store.RecordRun(ctx, types.RunSummary{
		Mode:       plan.Mode,
		TargetSize: plan.TargetSize,
		Processed:  report.Succeeded(),
		Failed:     report.Failed,
		StartedAt:  started.UTC(),
		Duration:   report.Duration.Round(time.Millisecond).String(),
	}); recErr != nil {
		e.log.Warn("failed to record run summary", "error", recErr)
	}

	return report, runErr
}

func (e *Engine) run(ctx context.Context, plan *types.Plan, report *types.Report) error {
	// Force-refresh and single-ticket runs always hit the backend; regular
	// refreshes may skip it when the regenerated content is unchanged.
	force := plan.Mode == types.ModeForceRefresh || plan.Mode == types.ModeTestUpdate

	for _, key := range plan.ToRetire {
		if err := e.retire(ctx, key, report); err != nil {
			return err
		}
	}
	for _, c := range plan.ToRefresh {
		if err := e.publish(ctx, c, "refresh", force, report); err != nil {
			return err
		}
	}
	for _, c := range plan.ToAdd {
		if err := e.publish(ctx, c, "add", force, report); err != nil {
			return err
		}
	}
	return nil
}

// publish runs the summarize-publish pipeline for one candidate. A backend
// failure marks the record failed and moves on; a store failure is returned
// and aborts the run.
func (e *Engine) publish(ctx context.Context, c types.Candidate, action string, force bool, report *types.Report) error {
	key := c.Ticket.Key

	prior, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		prior = nil
	} else if err != nil {
		return fmt.Errorf("read prior record for %s: %w", key, err)
	}

	descendants, err := e.loadDescendants(ctx, c)
	if err != nil {
		return fmt.Errorf("load descendant summaries for %s: %w", key, err)
	}

	artifact, err := e.summarizer.Summarize(ctx, c.Ticket, descendants)
	if err != nil {
		recordOperation(ctx, action, err)
		return e.markFailed(ctx, c, prior, action, fmt.Errorf("summarize: %w", err), report)
	}

	fingerprint := types.Fingerprint(artifact)
	if !force && prior != nil && prior.Status == types.StatusPublished && prior.Fingerprint == fingerprint {
		// The remote entry already holds this exact content; record the
		// current descendant count and skip the upload.
		rec := *prior
		rec.DescendantCount = c.DescendantCount()
		if err := e.store.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("record unchanged state for %s: %w", key, err)
		}
		recordOperation(ctx, action, nil)
		report.Unchanged++
		e.log.Info("content unchanged, skipping publish", "ticket", key, "descendants", c.DescendantCount())
		return nil
	}

	priorRemoteID := ""
	if prior != nil {
		priorRemoteID = prior.RemoteID
	}

	remoteID, err := e.publisher.Publish(ctx, key, artifact, priorRemoteID)
	if err != nil {
		recordOperation(ctx, action, err)
		return e.markFailed(ctx, c, prior, action, fmt.Errorf("publish: %w", err), report)
	}

	if err := e.store.Upsert(ctx, types.PublishedRecord{
		Key:             key,
		DescendantCount: c.DescendantCount(),
		Fingerprint:     fingerprint,
		Status:          types.StatusPublished,
		RemoteID:        remoteID,
	}); err != nil {
		return fmt.Errorf("record published state for %s: %w", key, err)
	}

	recordOperation(ctx, action, nil)
	switch action {
	case "refresh":
		report.Refreshed++
	default:
		report.Added++
	}
	e.log.Info("published", "ticket", key, "action", action, "descendants", c.DescendantCount(), "remote_id", remoteID)
	return nil
}

func (e *Engine) retire(ctx context.Context, key string, report *types.Report) error {
	rec, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		// Already gone locally; nothing to retract.
		return nil
	}
	if err != nil {
		return fmt.Errorf("read record for %s: %w", key, err)
	}

	if retractErr := e.publisher.Retract(ctx, key, rec.RemoteID); retractErr != nil {
		recordOperation(ctx, "retire", retractErr)
		rec.Status = types.StatusFailed
		if err := e.store.Upsert(ctx, *rec); err != nil {
			return fmt.Errorf("record failed retirement for %s: %w", key, err)
		}
		report.Failed++
		report.Failures = append(report.Failures, types.Failure{Key: key, Action: "retire", Reason: retractErr.Error()})
		e.log.Warn("retirement failed", "ticket", key, "error", retractErr)
		return nil
	}

	if err := e.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove record for %s: %w", key, err)
	}
	recordOperation(ctx, "retire", nil)
	report.Retired++
	e.log.Info("retired", "ticket", key)
	return nil
}

func (e *Engine) markFailed(ctx context.Context, c types.Candidate, prior *types.PublishedRecord, action string, cause error, report *types.Report) error {
	rec := types.PublishedRecord{
		Key:             c.Ticket.Key,
		DescendantCount: c.DescendantCount(),
		Status:          types.StatusFailed,
	}
	if prior != nil {
		// The remote entry is still live; keep its handle and last-published
		// fingerprint so a later retry can update or retract it.
		rec.RemoteID = prior.RemoteID
		rec.Fingerprint = prior.Fingerprint
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("record failed state for %s: %w", c.Ticket.Key, err)
	}
	report.Failed++
	report.Failures = append(report.Failures, types.Failure{Key: c.Ticket.Key, Action: action, Reason: cause.Error()})
	e.log.Warn("entry failed", "ticket", c.Ticket.Key, "action", action, "error", cause)
	return nil
}

func (e *Engine) loadDescendants(ctx context.Context, c types.Candidate) ([]bot.DescendantSummary, error) {
	if len(c.Descendants) == 0 {
		return nil, nil
	}
	summaries, err := e.loader.FetchSummaries(ctx, c.DescendantKeys())
	if err != nil {
		return nil, err
	}
	out := make([]bot.DescendantSummary, len(c.Descendants))
	for i, d := range c.Descendants {
		out[i] = bot.DescendantSummary{Key: d.Key, Depth: d.Depth, Summary: summaries[d.Key]}
	}
	return out, nil
}
