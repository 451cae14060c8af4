package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/feedbackops/kbsync/internal/types"
)

const (
	defaultClaudeModel   = "claude-3-5-haiku-latest"
	claudeMaxRetries     = 3
	claudeInitialBackoff = 1 * time.Second
)

// claudeSummarizer generates artifacts through the Anthropic API directly.
// It is summarize-only and is paired with a platform or alpha publisher.
type claudeSummarizer struct {
	client         anthropic.Client
	model          anthropic.Model
	promptTemplate *template.Template
	maxRetries     int
	initialBackoff time.Duration
}

func newClaudeSummarizer(cfg Config) (*claudeSummarizer, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("bot %q: set ANTHROPIC_API_KEY or api_key in the bots file", cfg.Name)
	}

	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}

	tmpl, err := template.New("summarize").Parse(claudePromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return &claudeSummarizer{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		promptTemplate: tmpl,
		maxRetries:     claudeMaxRetries,
		initialBackoff: claudeInitialBackoff,
	}, nil
}

type claudePromptData struct {
	Hierarchy string
}

// Summarize renders the hierarchy prompt and calls the messages API with
// bounded exponential-backoff retries on rate limits and server errors.
func (c *claudeSummarizer) Summarize(ctx context.Context, ticket types.Ticket, descendants []DescendantSummary) (string, error) {
	var prompt strings.Builder
	if err := c.promptTemplate.Execute(&prompt, claudePromptData{Hierarchy: BuildPrompt(ticket, descendants)}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.String())),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("%w: no content blocks in response", ErrBackend)
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", fmt.Errorf("%w: unexpected response block type %q", ErrBackend, block.Type)
			}
			return strings.TrimSpace(block.Text), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !claudeRetryable(err) {
			return "", fmt.Errorf("%w: %v", ErrBackend, err)
		}
	}

	return "", fmt.Errorf("%w: failed after %d attempts: %v", ErrBackend, c.maxRetries+1, lastErr)
}

func claudeRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

const claudePromptTemplate = `You are summarizing a cluster of duplicate tracker tickets for a knowledge base. The first line is the parent ticket; the remaining lines are tickets marked as duplicates of it, labelled by depth.

{{.Hierarchy}}

Write a concise, structured summary covering the main problem, the common patterns across the duplicates, and any actionable insight. 2-3 short paragraphs, no preamble.`
