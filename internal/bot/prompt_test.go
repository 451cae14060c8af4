package bot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/feedbackops/kbsync/internal/types"
)

func TestBuildPromptLabelsLevels(t *testing.T) {
	ticket := types.Ticket{Key: "FB-1", Summary: "login fails on SSO"}
	descendants := []DescendantSummary{
		{Key: "FB-2", Depth: 1, Summary: "cannot log in"},
		{Key: "FB-3", Depth: 1, Summary: "SSO redirect loop"},
		{Key: "FB-4", Depth: 2, Summary: "session expires immediately"},
		{Key: "FB-5", Depth: 3, Summary: "token refresh 401"},
	}

	prompt := BuildPrompt(ticket, descendants)
	lines := strings.Split(prompt, "\n")
	assert.Equal(t, []string{
		"Parent Ticket Summary: login fails on SSO",
		"Child 1 Summary: cannot log in",
		"Child 2 Summary: SSO redirect loop",
		"Grandchild 1 Summary: session expires immediately",
		"Great-Grandchild 1 Summary: token refresh 401",
	}, lines)
}

func TestBuildPromptNoDescendants(t *testing.T) {
	prompt := BuildPrompt(types.Ticket{Key: "FB-1", Summary: "lonely parent"}, nil)
	assert.Equal(t, "Parent Ticket Summary: lonely parent", prompt)
}

func TestLevelLabelDeepNesting(t *testing.T) {
	assert.Equal(t, "Child", levelLabel(1))
	assert.Equal(t, "Grandchild", levelLabel(2))
	assert.Equal(t, "Great-Great-Grandchild", levelLabel(4))
}

func TestCleanArtifact(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"markdown stripped", "**Summary:** the `login` flow *breaks*", "Summary: the login flow breaks"},
		{"whitespace collapsed", "a\n\n  b\tc", "a b c"},
		{"already clean", "plain text", "plain text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanArtifact(tc.in))
		})
	}
}

func TestCleanArtifactCapsLength(t *testing.T) {
	long := strings.Repeat("x", 3000)
	got := CleanArtifact(long)
	assert.Len(t, got, maxArtifactLen)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestCleanArtifactTruncatesOnRuneBoundary(t *testing.T) {
	// 1500 two-byte runes put the cut point mid-rune.
	long := strings.Repeat("é", 1500)
	got := CleanArtifact(long)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxArtifactLen)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Name: "prod", Type: TypePlatform, URL: "https://bot", AppID: "app", UserEmail: "svc@example.com"}
	assert.NoError(t, valid.Validate())

	missing := Config{Name: "prod", Type: TypePlatform, URL: "https://bot"}
	assert.Error(t, missing.Validate())

	alpha := Config{Name: "alpha", Type: TypeAlpha, URL: "https://alpha", ExpertID: "42", APIKey: "k"}
	assert.NoError(t, alpha.Validate())

	unknown := Config{Name: "x", Type: "telegraph"}
	assert.Error(t, unknown.Validate())
}

func TestNewPublisherRejectsClaude(t *testing.T) {
	_, err := NewPublisher(Config{Name: "c", Type: TypeClaude})
	assert.Error(t, err)
}
