// Package config loads kbsync configuration: the main config.yaml (viper,
// with KBSYNC_* environment overrides and bare Jira env fallbacks) and the
// named-bots file (plain yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/feedbackops/kbsync/internal/bot"
)

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultDBPath     = "kbsync.db"
	DefaultBotsFile   = "bots.yaml"
	DefaultTargetSize = 25
)

// Jira holds tracker connection settings.
type Jira struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	APIToken    string `mapstructure:"api_token"`
	ParentQuery string `mapstructure:"parent_query"`
}

// Config is the resolved run configuration.
type Config struct {
	Jira       Jira   `mapstructure:"jira"`
	DBPath     string `mapstructure:"db"`
	BotsFile   string `mapstructure:"bots_file"`
	TargetSize int    `mapstructure:"target_size"`
	Summarizer string `mapstructure:"summarizer"`
	Publisher  string `mapstructure:"publisher"`
	LogFile    string `mapstructure:"log_file"`
}

// Load reads configuration from the given file, or searches the working
// directory and the XDG config dir for config.yaml when path is empty. A
// missing file is not an error; environment variables alone can carry a full
// configuration. Precedence: explicit file < KBSYNC_* env < bare Jira env.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if confDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(confDir, "kbsync"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("KBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", DefaultDBPath)
	v.SetDefault("bots_file", DefaultBotsFile)
	v.SetDefault("target_size", DefaultTargetSize)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyJiraEnv(&cfg.Jira)
	return &cfg, nil
}

// applyJiraEnv fills unset Jira fields from the conventional bare variables
// so existing JIRA_* credentials work without a config file.
func applyJiraEnv(j *Jira) {
	fallback := func(dst *string, envKey string) {
		if *dst == "" {
			*dst = os.Getenv(envKey)
		}
	}
	fallback(&j.URL, "JIRA_URL")
	fallback(&j.Username, "JIRA_USERNAME")
	fallback(&j.APIToken, "JIRA_API_TOKEN")
	fallback(&j.ParentQuery, "JIRA_PARENT_QUERY")
}

// Validate checks that the settings required for a reconciliation run are
// present.
func (c *Config) Validate() error {
	var issues []string
	if c.Jira.URL == "" {
		issues = append(issues, "jira.url is required (or set JIRA_URL)")
	}
	if c.Jira.APIToken == "" {
		issues = append(issues, "jira.api_token is required (or set JIRA_API_TOKEN)")
	}
	if c.Jira.ParentQuery == "" {
		issues = append(issues, "jira.parent_query is required (or set JIRA_PARENT_QUERY)")
	}
	if c.TargetSize <= 0 {
		issues = append(issues, fmt.Sprintf("target_size must be positive, got %d", c.TargetSize))
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(issues, "\n  "))
	}
	return nil
}

// LoadBots parses the named-bots file: a yaml mapping of bot name to its
// backend settings. Every entry is validated for its declared type.
func LoadBots(path string) (map[string]bot.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bots file %s: %w", path, err)
	}

	var raw struct {
		Bots map[string]bot.Config `yaml:"bots"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse bots file %s: %w", path, err)
	}
	if len(raw.Bots) == 0 {
		return nil, fmt.Errorf("bots file %s defines no bots", path)
	}

	for name, cfg := range raw.Bots {
		cfg.Name = name
		applyBotEnv(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		raw.Bots[name] = cfg
	}
	return raw.Bots, nil
}

// applyBotEnv fills per-bot secrets from NAME_APP_SECRET / NAME_API_KEY style
// variables so credentials can stay out of the bots file.
func applyBotEnv(cfg *bot.Config) {
	prefix := strings.ToUpper(strings.ReplaceAll(cfg.Name, "-", "_"))
	if cfg.AppSecret == "" {
		cfg.AppSecret = os.Getenv(prefix + "_APP_SECRET")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(prefix + "_API_KEY")
	}
}
