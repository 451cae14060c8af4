package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/feedbackops/kbsync/internal/types"
)

// platformClient speaks the AI Bot Platform wire format: a single chat-style
// endpoint that answers free-form questions and accepts command-prefixed
// messages ("add:", "update:", "delete:") to maintain its knowledge index.
type platformClient struct {
	cfg        Config
	httpClient *http.Client
	maxElapsed time.Duration
}

func newPlatformClient(cfg Config) *platformClient {
	return &platformClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxElapsed: 2 * time.Minute,
	}
}

// platformRequest is the question payload. request_id makes retried questions
// idempotent on the platform side.
type platformRequest struct {
	AppID     string `json:"app_id"`
	UserEmail string `json:"user_email"`
	AppSecret string `json:"app_secret,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Question  string `json:"question,omitempty"`
	// Command carries knowledge-index maintenance messages.
	Command string `json:"message_content,omitempty"`
}

type platformResponse struct {
	Reply      string `json:"reply"`
	DocID      string `json:"doc_id"`
	DocumentID string `json:"document_id"`
}

func (r *platformResponse) docID() string {
	if r.DocID != "" {
		return r.DocID
	}
	return r.DocumentID
}

// Summarize asks the platform bot to summarize the ticket hierarchy and
// returns the reply text.
func (p *platformClient) Summarize(ctx context.Context, ticket types.Ticket, descendants []DescendantSummary) (string, error) {
	resp, err := p.post(ctx, platformRequest{
		AppID:     p.cfg.AppID,
		UserEmail: p.cfg.UserEmail,
		AppSecret: p.cfg.AppSecret,
		RequestID: uuid.NewString(),
		Question:  BuildPrompt(ticket, descendants),
	})
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(resp.Reply)
	if reply == "" {
		return "", fmt.Errorf("%w: bot %q returned an empty reply for %s", ErrBackend, p.cfg.Name, ticket.Key)
	}
	return reply, nil
}

// Publish ingests the artifact into the platform's knowledge index. A prior
// document id switches the command from add to update so the existing entry
// is replaced in place. The returned id is the platform's document handle;
// when an update response omits it, the prior id is carried forward.
func (p *platformClient) Publish(ctx context.Context, key, artifact, priorRemoteID string) (string, error) {
	verb := "add"
	if priorRemoteID != "" {
		verb = "update"
	}
	resp, err := p.command(ctx, fmt.Sprintf("%s: %s", verb, CleanArtifact(artifact)))
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", verb, key, err)
	}
	if id := resp.docID(); id != "" {
		return id, nil
	}
	if priorRemoteID != "" {
		return priorRemoteID, nil
	}
	return "", fmt.Errorf("%w: bot %q returned no document id for %s", ErrBackend, p.cfg.Name, key)
}

// Retract deletes the entry from the platform's knowledge index. A missing
// remote id falls back to the ticket key, which older platform deployments
// accept as a deletion handle.
func (p *platformClient) Retract(ctx context.Context, key, remoteID string) error {
	handle := remoteID
	if handle == "" {
		handle = key
	}
	if _, err := p.command(ctx, "delete: "+handle); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (p *platformClient) command(ctx context.Context, command string) (*platformResponse, error) {
	return p.post(ctx, platformRequest{
		AppID:     p.cfg.AppID,
		UserEmail: p.cfg.UserEmail,
		AppSecret: p.cfg.AppSecret,
		Command:   command,
	})
}

func (p *platformClient) post(ctx context.Context, reqBody platformRequest) (*platformResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	var out platformResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, &out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		default:
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: bot %q: %v", ErrBackend, p.cfg.Name, err)
	}
	return &out, nil
}
