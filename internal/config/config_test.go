package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedbackops/kbsync/internal/bot"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
jira:
  url: https://tracker.example.com
  username: svc@example.com
  api_token: tok-123
  parent_query: 'project = FB AND labels = feedback'
db: /var/lib/kbsync/state.db
target_size: 40
summarizer: alpha-prod
publisher: alpha-prod
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://tracker.example.com", cfg.Jira.URL)
	assert.Equal(t, "tok-123", cfg.Jira.APIToken)
	assert.Equal(t, "/var/lib/kbsync/state.db", cfg.DBPath)
	assert.Equal(t, 40, cfg.TargetSize)
	assert.Equal(t, "alpha-prod", cfg.Summarizer)
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
jira:
  url: https://tracker.example.com
  api_token: tok
  parent_query: 'project = FB'
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultBotsFile, cfg.BotsFile)
	assert.Equal(t, DefaultTargetSize, cfg.TargetSize)
}

func TestLoadJiraEnvFallback(t *testing.T) {
	t.Setenv("JIRA_URL", "https://env.example.com")
	t.Setenv("JIRA_API_TOKEN", "env-token")
	t.Setenv("JIRA_PARENT_QUERY", "project = ENV")

	path := writeFile(t, "config.yaml", "target_size: 5\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Jira.URL)
	assert.Equal(t, "env-token", cfg.Jira.APIToken)
	require.NoError(t, cfg.Validate())
}

func TestValidateReportsAllIssues(t *testing.T) {
	cfg := &Config{TargetSize: 0}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jira.url")
	assert.Contains(t, err.Error(), "jira.api_token")
	assert.Contains(t, err.Error(), "target_size")
}

func TestLoadBots(t *testing.T) {
	path := writeFile(t, "bots.yaml", `
bots:
  platform-prod:
    type: ai_bot_platform
    url: https://bots.example.com/api
    app_id: app-7
    user_email: svc@example.com
    app_secret: shh
  alpha-prod:
    type: alpha_knowledge
    url: https://alpha.example.com
    expert_id: "42"
    api_key: key-1
    citation_base_url: https://tracker.example.com/browse
`)

	bots, err := LoadBots(path)
	require.NoError(t, err)
	require.Len(t, bots, 2)

	platform := bots["platform-prod"]
	assert.Equal(t, "platform-prod", platform.Name)
	assert.Equal(t, bot.TypePlatform, platform.Type)

	alpha := bots["alpha-prod"]
	assert.Equal(t, bot.TypeAlpha, alpha.Type)
	assert.Equal(t, "42", alpha.ExpertID)
}

func TestLoadBotsSecretFromEnv(t *testing.T) {
	t.Setenv("PLATFORM_PROD_APP_SECRET", "env-secret")
	path := writeFile(t, "bots.yaml", `
bots:
  platform-prod:
    type: ai_bot_platform
    url: https://bots.example.com/api
    app_id: app-7
    user_email: svc@example.com
`)

	bots, err := LoadBots(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", bots["platform-prod"].AppSecret)
}

func TestLoadBotsRejectsInvalid(t *testing.T) {
	path := writeFile(t, "bots.yaml", `
bots:
  broken:
    type: ai_bot_platform
    url: https://bots.example.com/api
`)

	_, err := LoadBots(path)
	assert.Error(t, err)
}

func TestLoadBotsEmptyFile(t *testing.T) {
	path := writeFile(t, "bots.yaml", "bots: {}\n")
	_, err := LoadBots(path)
	assert.Error(t, err)
}
