// Package bot implements the backend adapters that turn a ticket hierarchy
// into a published knowledge artifact. Two concerns are modeled as capability
// interfaces: summarization (ticket + descendants -> artifact text) and
// publishing (artifact -> remote knowledge base entry). Each has multiple
// wire-format variants selected by named configuration; the reconciliation
// engine depends only on the interfaces.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedbackops/kbsync/internal/types"
)

// ErrBackend wraps summarization and publishing failures: authentication,
// quota, network, and malformed-response conditions. Backend errors are
// isolated to one plan entry and never abort a batch.
var ErrBackend = errors.New("backend request failed")

// Type identifies a backend wire format.
type Type string

const (
	// TypePlatform is the AI Bot Platform: a single chat-style endpoint
	// that answers free-form questions and accepts add/update/delete
	// commands for its knowledge index.
	TypePlatform Type = "ai_bot_platform"
	// TypeAlpha is Alpha Knowledge: a REST expert API with chat
	// completions for summarization and a knowledges collection for
	// publishing.
	TypeAlpha Type = "alpha_knowledge"
	// TypeClaude is a direct Anthropic-API summarizer. Summarize-only;
	// it has no knowledge index and cannot publish.
	TypeClaude Type = "claude"
)

// Config is one named backend entry from the bots file. Which fields matter
// depends on Type; Validate enforces the per-type requirements.
type Config struct {
	Name      string `yaml:"-"`
	Type      Type   `yaml:"type"`
	URL       string `yaml:"url,omitempty"`
	AppID     string `yaml:"app_id,omitempty"`
	UserEmail string `yaml:"user_email,omitempty"`
	AppSecret string `yaml:"app_secret,omitempty"`
	ExpertID  string `yaml:"expert_id,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	Model     string `yaml:"model,omitempty"`

	// CitationBaseURL is the tracker browse URL prefix used for citation
	// links on published entries (e.g. "https://jira.example.com/browse").
	CitationBaseURL string `yaml:"citation_base_url,omitempty"`
}

// Validate checks that the config carries the fields its type requires.
func (c *Config) Validate() error {
	switch c.Type {
	case TypePlatform:
		if c.URL == "" || c.AppID == "" || c.UserEmail == "" {
			return fmt.Errorf("bot %q (%s): url, app_id and user_email are required", c.Name, c.Type)
		}
	case TypeAlpha:
		if c.URL == "" || c.ExpertID == "" || c.APIKey == "" {
			return fmt.Errorf("bot %q (%s): url, expert_id and api_key are required", c.Name, c.Type)
		}
	case TypeClaude:
		// API key may come from the environment; nothing mandatory here.
	default:
		return fmt.Errorf("bot %q: unsupported bot type %q", c.Name, c.Type)
	}
	return nil
}

// DescendantSummary pairs one descendant ticket with its summary text, ready
// for prompt construction.
type DescendantSummary struct {
	Key     string
	Depth   int
	Summary string
}

// Summarizer turns a ticket and its descendant set into a knowledge artifact.
type Summarizer interface {
	Summarize(ctx context.Context, ticket types.Ticket, descendants []DescendantSummary) (string, error)
}

// Publisher ingests artifacts into the remote knowledge base, keyed by ticket
// identifier. Publish returns the backend's handle for the entry (document or
// knowledge id); priorRemoteID carries the handle from a previous publish of
// the same ticket so refresh-style updates can replace it. Retract removes
// the entry.
type Publisher interface {
	Publish(ctx context.Context, key, artifact, priorRemoteID string) (remoteID string, err error)
	Retract(ctx context.Context, key, remoteID string) error
}

// NewSummarizer builds the summarizer variant for cfg.
func NewSummarizer(cfg Config) (Summarizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypePlatform:
		return newPlatformClient(cfg), nil
	case TypeAlpha:
		return newAlphaClient(cfg), nil
	case TypeClaude:
		return newClaudeSummarizer(cfg)
	}
	return nil, fmt.Errorf("bot %q: type %q cannot summarize", cfg.Name, cfg.Type)
}

// NewPublisher builds the publisher variant for cfg. Claude-type bots cannot
// publish.
func NewPublisher(cfg Config) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypePlatform:
		return newPlatformClient(cfg), nil
	case TypeAlpha:
		return newAlphaClient(cfg), nil
	}
	return nil, fmt.Errorf("bot %q: type %q cannot publish", cfg.Name, cfg.Type)
}
