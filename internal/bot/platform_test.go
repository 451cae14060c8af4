package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedbackops/kbsync/internal/types"
)

func testPlatformClient(url string) *platformClient {
	c := newPlatformClient(Config{
		Name:      "test",
		Type:      TypePlatform,
		URL:       url,
		AppID:     "app-1",
		UserEmail: "svc@example.com",
		AppSecret: "secret",
	})
	c.maxElapsed = 2 * time.Second
	return c
}

func TestPlatformSummarize(t *testing.T) {
	var got platformRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "  the summary  "})
	}))
	defer srv.Close()

	c := testPlatformClient(srv.URL)
	out, err := c.Summarize(context.Background(), types.Ticket{Key: "FB-1", Summary: "parent"}, []DescendantSummary{
		{Key: "FB-2", Depth: 1, Summary: "child"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the summary", out)
	assert.Equal(t, "app-1", got.AppID)
	assert.NotEmpty(t, got.RequestID)
	assert.Contains(t, got.Question, "Parent Ticket Summary: parent")
	assert.Contains(t, got.Question, "Child 1 Summary: child")
}

func TestPlatformSummarizeEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": ""})
	}))
	defer srv.Close()

	_, err := testPlatformClient(srv.URL).Summarize(context.Background(), types.Ticket{Key: "FB-1"}, nil)
	assert.ErrorIs(t, err, ErrBackend)
}

func TestPlatformPublishAddAndUpdate(t *testing.T) {
	var commands []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req platformRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		commands = append(commands, req.Command)
		_ = json.NewEncoder(w).Encode(map[string]string{"doc_id": "doc-9"})
	}))
	defer srv.Close()

	c := testPlatformClient(srv.URL)
	ctx := context.Background()

	id, err := c.Publish(ctx, "FB-1", "**fresh** summary", "")
	require.NoError(t, err)
	assert.Equal(t, "doc-9", id)

	id, err = c.Publish(ctx, "FB-1", "revised summary", "doc-9")
	require.NoError(t, err)
	assert.Equal(t, "doc-9", id)

	require.Len(t, commands, 2)
	assert.Equal(t, "add: fresh summary", commands[0])
	assert.Equal(t, "update: revised summary", commands[1])
}

func TestPlatformPublishUpdateKeepsPriorID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	id, err := testPlatformClient(srv.URL).Publish(context.Background(), "FB-1", "text", "doc-old")
	require.NoError(t, err)
	assert.Equal(t, "doc-old", id)
}

func TestPlatformRetract(t *testing.T) {
	var got platformRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	require.NoError(t, testPlatformClient(srv.URL).Retract(context.Background(), "FB-1", "doc-9"))
	assert.Equal(t, "delete: doc-9", got.Command)
}

func TestPlatformRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "ok"})
	}))
	defer srv.Close()

	out, err := testPlatformClient(srv.URL).Summarize(context.Background(), types.Ticket{Key: "FB-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestPlatformClientErrorIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testPlatformClient(srv.URL).Summarize(context.Background(), types.Ticket{Key: "FB-1"}, nil)
	assert.ErrorIs(t, err, ErrBackend)
	assert.Equal(t, 1, calls)
}
