package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "user", "token")
	c.maxRetryElapsed = 5 * time.Second
	return c
}

func TestSearchIssuesPagination(t *testing.T) {
	pages := map[string]SearchResult{
		"0": {StartAt: 0, Total: 3, Issues: []Issue{{Key: "FB-1"}, {Key: "FB-2"}}},
		"2": {StartAt: 2, Total: 3, Issues: []Issue{{Key: "FB-3"}}},
	}

	var requests int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		startAt := r.URL.Query().Get("startAt")
		page, ok := pages[startAt]
		require.True(t, ok, "unexpected startAt %s", startAt)
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	issues, err := c.SearchIssues(context.Background(), "project = FB")
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	require.Len(t, issues, 3)
	assert.Equal(t, "FB-3", issues[2].Key)
}

func TestSearchIssuesRetriesServerErrors(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(SearchResult{Total: 1, Issues: []Issue{{Key: "FB-1"}}}))
	})

	issues, err := c.SearchIssues(context.Background(), "project = FB")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 3)
	assert.Len(t, issues, 1)
}

func TestSearchIssuesClientErrorIsPermanent(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errorMessages":["bad jql"]}`)
	})

	_, err := c.SearchIssues(context.Background(), "not a query")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, 1, calls, "4xx must not be retried")
}

func TestGetIssueParsesDuplicateLinks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"key": "FB-1",
			"fields": {
				"summary": "Login fails on SSO",
				"created": "2024-03-01T10:15:30.000+0800",
				"issuelinks": [
					{
						"type": {"name": "Duplicate", "inward": "is duplicated by", "outward": "duplicates"},
						"inwardIssue": {"key": "FB-2"}
					},
					{
						"type": {"name": "Duplicate", "inward": "is duplicated by", "outward": "duplicates"},
						"outwardIssue": {"key": "FB-0"}
					},
					{
						"type": {"name": "Relates", "inward": "relates to", "outward": "relates to"},
						"inwardIssue": {"key": "FB-9"}
					}
				]
			}
		}`)
	})

	issue, err := c.GetIssue(context.Background(), "FB-1")
	require.NoError(t, err)

	ticket := toTicket(issue)
	assert.Equal(t, []string{"FB-2"}, ticket.Inward)
	assert.Equal(t, []string{"FB-0"}, ticket.Outward)
	assert.Equal(t, "Login fails on SSO", ticket.Summary)
	assert.Equal(t, 2024, ticket.Created.Year())
}

func TestDescriptionToPlainText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, ""},
		{"null", `null`, ""},
		{"plain string", `"just text"`, "just text"},
		{
			"adf document",
			`{"type":"doc","version":1,"content":[
				{"type":"paragraph","content":[{"type":"text","text":"line one"}]},
				{"type":"paragraph","content":[{"type":"text","text":"line "},{"type":"text","text":"two"}]}
			]}`,
			"line one\nline two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DescriptionToPlainText(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-01T10:15:30.000+0800")
	require.NoError(t, err)
	assert.Equal(t, time.March, ts.Month())

	_, err = ParseTimestamp("")
	assert.Error(t, err)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestSourceFetchCandidatesRequiresQuery(t *testing.T) {
	c := NewClient("https://jira.example.com", "u", "tok")
	s := NewSource(c, "", nil)
	_, err := s.FetchCandidates(context.Background())
	assert.ErrorIs(t, err, ErrFetch)
}
