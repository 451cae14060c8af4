package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/feedbackops/kbsync/internal/types"
)

// alphaClient speaks the Alpha Knowledge expert API: chat completions for
// summarization and a knowledges collection for publishing. Knowledge entries
// are immutable uploads, so an update is a delete of the prior entry followed
// by a fresh upload.
type alphaClient struct {
	cfg        Config
	httpClient *http.Client
	maxElapsed time.Duration
	now        func() time.Time
}

func newAlphaClient(cfg Config) *alphaClient {
	return &alphaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxElapsed: 2 * time.Minute,
		now:        time.Now,
	}
}

func (a *alphaClient) baseURL() string {
	return strings.TrimRight(a.cfg.URL, "/")
}

func (a *alphaClient) knowledgesURL() string {
	return fmt.Sprintf("%s/experts/%s/knowledges", a.baseURL(), a.cfg.ExpertID)
}

// alphaPromptPreamble frames the raw hierarchy content for the chat endpoint.
const alphaPromptPreamble = `Please analyze and summarize the following ticket information. Provide a concise, structured summary that captures the key issues, patterns, and actionable insights.

Focus on:
1. Main problem or request
2. Key patterns across related tickets
3. Common pain points or blockers
4. Suggested actions or solutions

Ticket Information:
%s

Please provide a clear, actionable summary in 2-3 paragraphs.`

type alphaChatRequest struct {
	Messages []alphaMessage `json:"messages"`
	User     string         `json:"user"`
	Stream   bool           `json:"stream"`
}

type alphaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type alphaChatResponse struct {
	Choices []struct {
		Message alphaMessage `json:"message"`
	} `json:"choices"`
}

// Summarize sends the hierarchy prompt through the expert chat endpoint and
// returns the first choice's message content.
func (a *alphaClient) Summarize(ctx context.Context, ticket types.Ticket, descendants []DescendantSummary) (string, error) {
	payload, err := json.Marshal(alphaChatRequest{
		Messages: []alphaMessage{{Role: "user", Content: fmt.Sprintf(alphaPromptPreamble, BuildPrompt(ticket, descendants))}},
		User:     a.cfg.UserEmail,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	chatURL := fmt.Sprintf("%s/experts/%s/v2/chat/completions", a.baseURL(), a.cfg.ExpertID)
	body, err := a.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var chat alphaChatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("%w: bot %q: decode chat response: %v", ErrBackend, a.cfg.Name, err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: bot %q returned no choices for %s", ErrBackend, a.cfg.Name, ticket.Key)
	}
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: bot %q returned empty content for %s", ErrBackend, a.cfg.Name, ticket.Key)
	}
	return content, nil
}

// Publish uploads the artifact as a markdown knowledge entry and returns the
// new knowledge id. When a prior id exists the old entry is deleted first;
// a failed delete is tolerated since the stale entry is superseded either way.
func (a *alphaClient) Publish(ctx context.Context, key, artifact, priorRemoteID string) (string, error) {
	if priorRemoteID != "" {
		// Best effort. Orphaned entries are cleaned up on the next refresh.
		_ = a.deleteKnowledge(ctx, priorRemoteID)
	}

	title := "Ticket " + key
	citationURL := ""
	if a.cfg.CitationBaseURL != "" {
		citationURL = strings.TrimRight(a.cfg.CitationBaseURL, "/") + "/" + key
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", key+".md")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if _, err := io.WriteString(fw, a.renderMarkdown(title, citationURL, artifact)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if err := mw.WriteField("citation_url", citationURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if err := mw.WriteField("citation_title", title); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	payload := buf.Bytes()

	body, err := a.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.knowledgesURL(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	var uploaded struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return "", fmt.Errorf("%w: bot %q: decode upload response: %v", ErrBackend, a.cfg.Name, err)
	}
	if uploaded.ID.String() == "" {
		return "", fmt.Errorf("%w: bot %q returned no knowledge id for %s", ErrBackend, a.cfg.Name, key)
	}
	return uploaded.ID.String(), nil
}

// Retract deletes the knowledge entry. An entry with no recorded remote id
// cannot be addressed and reports an error rather than guessing.
func (a *alphaClient) Retract(ctx context.Context, key, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("%w: bot %q: no knowledge id recorded for %s", ErrBackend, a.cfg.Name, key)
	}
	if err := a.deleteKnowledge(ctx, remoteID); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (a *alphaClient) deleteKnowledge(ctx context.Context, knowledgeID string) error {
	_, err := a.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.knowledgesURL()+"/"+knowledgeID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		return req, nil
	})
	return err
}

func (a *alphaClient) renderMarkdown(title, citationURL, artifact string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Content\n\n%s\n\n## Source\n\n", title, strings.TrimSpace(artifact))
	if citationURL != "" {
		fmt.Fprintf(&b, "- **Citation**: [%s](%s)\n", title, citationURL)
	}
	fmt.Fprintf(&b, "- **Added**: %s\n", a.now().UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}

// do sends the request with exponential backoff. 2xx responses return the
// body; 404 on deletes counts as success since the entry is already gone.
// 429 and 5xx retry, other statuses fail immediately.
func (a *alphaClient) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var out []byte
	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			out = body
			return nil
		case resp.StatusCode == http.StatusNotFound && req.Method == http.MethodDelete:
			out = nil
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		default:
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = a.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: bot %q: %v", ErrBackend, a.cfg.Name, err)
	}
	return out, nil
}
