// Package jira provides the ticket source for kbsync: a minimal Jira REST v3
// client that fetches the configured parent-ticket query and the duplicate
// issue links needed by the hierarchy resolver.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrFetch wraps every ticket-source failure. A fetch error aborts the run
// before any plan execution; nothing is mutated.
var ErrFetch = errors.New("ticket source fetch failed")

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields of a Jira issue that kbsync consumes.
type IssueFields struct {
	Summary        string           `json:"summary"`
	Description    json.RawMessage  `json:"description"` // ADF (Atlassian Document Format) or plain text
	Created        string           `json:"created"`
	Resolution     *ResolutionField `json:"resolution"`
	ResolutionDate string           `json:"resolutiondate"`
	IssueLinks     []IssueLink      `json:"issuelinks"`
}

// ResolutionField represents a Jira resolution.
type ResolutionField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueLink represents one entry of a Jira issuelinks field. Exactly one of
// InwardIssue and OutwardIssue is set per entry.
type IssueLink struct {
	Type         LinkType   `json:"type"`
	InwardIssue  *LinkedRef `json:"inwardIssue,omitempty"`
	OutwardIssue *LinkedRef `json:"outwardIssue,omitempty"`
}

// LinkType names a Jira issue link type ("Duplicate", "Relates", ...).
type LinkType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Inward  string `json:"inward"`
	Outward string `json:"outward"`
}

// LinkedRef is the abbreviated issue embedded in a link entry.
type LinkedRef struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
	} `json:"fields"`
}

// IsDuplicate reports whether the link is of the duplicate family. Jira
// instances name the type "Duplicate" or "Duplicates"; match the stem.
func (l *IssueLink) IsDuplicate() bool {
	return strings.Contains(strings.ToLower(l.Type.Name), "duplicat")
}

// SearchResult represents a Jira JQL search response.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	HTTPClient *http.Client

	// maxRetryElapsed bounds transient-error retries per request.
	maxRetryElapsed time.Duration
}

// NewClient creates a new Jira client.
func NewClient(url, username, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(url, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetryElapsed: 20 * time.Second,
	}
}

// searchFields is the set of fields requested in search/get queries.
// issuelinks is included so duplicate edges arrive with each issue and no
// per-ticket link fetch is needed.
const searchFields = "summary,description,created,resolution,resolutiondate,issuelinks"

// SearchIssues queries Jira using JQL and returns all matching issues,
// handling pagination transparently.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]Issue, error) {
	var allIssues []Issue
	startAt := 0
	maxResults := 100

	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {searchFields},
			"startAt":    {fmt.Sprintf("%d", startAt)},
			"maxResults": {fmt.Sprintf("%d", maxResults)},
		}

		apiURL := fmt.Sprintf("%s/rest/api/3/search?%s", c.URL, params.Encode())

		body, err := c.doRequest(ctx, "GET", apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: search issues: %v", ErrFetch, err)
		}

		var result SearchResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("%w: parse search response: %v", ErrFetch, err)
		}

		allIssues = append(allIssues, result.Issues...)

		if len(result.Issues) == 0 || startAt+len(result.Issues) >= result.Total {
			break
		}
		startAt += len(result.Issues)
	}

	return allIssues, nil
}

// GetIssue fetches a single Jira issue by key (e.g., "FB-123"), including its
// issue links.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=%s", c.URL, url.PathEscape(key), searchFields)

	body, err := c.doRequest(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: get issue %s: %v", ErrFetch, key, err)
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("%w: parse issue response: %v", ErrFetch, err)
	}

	return &issue, nil
}

// BrowseURL returns the human-facing URL for a ticket, used as the citation
// link on published knowledge entries.
func (c *Client) BrowseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", c.URL, key)
}

// doRequest executes an authenticated HTTP request and returns the response
// body. Transient failures (network errors, 429, 5xx) are retried with
// exponential backoff; exhaustion surfaces the last error.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, reqBody []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetryElapsed

	var respBody []byte
	op := func() error {
		var bodyReader io.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "kbsync/1.0")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err // network errors are retryable
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("jira API returned %d: %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("jira API returned %d: %s", resp.StatusCode, string(body)))
		}

		respBody = body
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return respBody, nil
}

// setAuth sets the appropriate authentication header: Basic for cloud-style
// username+token credentials, Bearer for PAT-only server instances.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

// DescriptionToPlainText extracts plain text from Jira's ADF (Atlassian
// Document Format). Jira v3 API returns descriptions as ADF JSON, not plain
// text.
func DescriptionToPlainText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var doc struct {
		Type    string `json:"type"`
		Content []struct {
			Type    string `json:"type"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"content"`
	}

	if err := json.Unmarshal(raw, &doc); err != nil || doc.Type != "doc" {
		// Not ADF - try plain string
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}

	var parts []string
	for _, block := range doc.Content {
		var line []string
		for _, inline := range block.Content {
			if inline.Text != "" {
				line = append(line, inline.Text)
			}
		}
		if len(line) > 0 {
			parts = append(parts, strings.Join(line, ""))
		}
	}

	return strings.Join(parts, "\n")
}

// ParseTimestamp parses Jira's timestamp format (RFC3339 with a numeric zone
// and no colon, e.g. "2024-03-01T10:15:30.000+0800").
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.000-0700",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
