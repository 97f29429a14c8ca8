// Package config holds the replyclaw configuration: platform and
// completion-API credentials plus the bot tunables. Values come from a
// JSON5 config file overlaid with REPLYCLAW_* environment variables;
// env vars take precedence so secrets never need to touch disk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/titanous/json5"
)

// Config is the root configuration for the replyclaw bot.
type Config struct {
	Twitter   TwitterConfig   `json:"twitter"`
	Venice    VeniceConfig    `json:"venice"`
	Bot       BotConfig       `json:"bot"`
	Schedule  ScheduleConfig  `json:"schedule,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`

	mu sync.RWMutex
}

// TwitterConfig holds X API credentials. GET endpoints use the bearer
// token; posting replies requires the OAuth 1.0a user-context keys.
type TwitterConfig struct {
	BearerToken  string `json:"bearer_token"`
	APIKey       string `json:"api_key"`
	APISecret    string `json:"api_secret"`
	AccessToken  string `json:"access_token"`
	AccessSecret string `json:"access_secret"`
	APIBase      string `json:"api_base,omitempty"` // default "https://api.twitter.com"
}

// VeniceConfig holds the completion backend credentials and model routing.
type VeniceConfig struct {
	APIKey       string `json:"api_key"`
	APIBase      string `json:"api_base,omitempty"`      // default "https://api.venice.ai/api/v1"
	WebModel     string `json:"web_model,omitempty"`     // text questions, web search enabled
	VisionModel  string `json:"vision_model,omitempty"`  // questions carrying an image
	CrafterModel string `json:"crafter_model,omitempty"` // final tweet crafting
	Summarize    bool   `json:"summarize,omitempty"`     // enable the intermediate summarization stage
}

// BotConfig holds the scheduling and reply-policy tunables.
// These are hot-reloadable; credentials are not.
type BotConfig struct {
	MinPollIntervalSec int    `json:"min_poll_interval_sec,omitempty"` // default 90
	MaxRepliesPerHour  int    `json:"max_replies_per_hour,omitempty"`  // default 30
	MaxMentionAgeHours int    `json:"max_mention_age_hours,omitempty"` // default 24
	MaxMentionsPerPoll int    `json:"max_mentions_per_poll,omitempty"` // default 5
	MentionPauseSec    int    `json:"mention_pause_sec,omitempty"`     // default 1
	StandardCharLimit  int    `json:"standard_char_limit,omitempty"`   // default 280
	PremiumCharLimit   int    `json:"premium_char_limit,omitempty"`    // default 25000
	Premium            bool   `json:"premium,omitempty"`
	StateFile          string `json:"state_file,omitempty"`     // default "state.json"
	ReplyLogFile       string `json:"reply_log_file,omitempty"` // default "replies.db"
}

// ScheduleConfig optionally restricts polling to a cron-shaped active window.
// An empty expression means the bot polls around the clock.
type ScheduleConfig struct {
	Active string `json:"active,omitempty"` // cron expression, e.g. "* 7-23 * * *"
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"` // default "replyclaw"
}

// Default returns a Config with the stock tunables applied.
func Default() *Config {
	return &Config{
		Twitter: TwitterConfig{
			APIBase: "https://api.twitter.com",
		},
		Venice: VeniceConfig{
			APIBase:      "https://api.venice.ai/api/v1",
			WebModel:     "qwen3-235b",
			VisionModel:  "mistral-31-24b",
			CrafterModel: "venice-uncensored",
		},
		Bot: BotConfig{
			MinPollIntervalSec: 90,
			MaxRepliesPerHour:  30,
			MaxMentionAgeHours: 24,
			MaxMentionsPerPoll: 5,
			MentionPauseSec:    1,
			StandardCharLimit:  280,
			PremiumCharLimit:   25000,
			StateFile:          "state.json",
			ReplyLogFile:       "replies.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: env vars alone can carry a full config.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("REPLYCLAW_TWITTER_BEARER_TOKEN", &c.Twitter.BearerToken)
	envStr("REPLYCLAW_TWITTER_API_KEY", &c.Twitter.APIKey)
	envStr("REPLYCLAW_TWITTER_API_SECRET", &c.Twitter.APISecret)
	envStr("REPLYCLAW_TWITTER_ACCESS_TOKEN", &c.Twitter.AccessToken)
	envStr("REPLYCLAW_TWITTER_ACCESS_SECRET", &c.Twitter.AccessSecret)
	envStr("REPLYCLAW_VENICE_API_KEY", &c.Venice.APIKey)

	envStr("REPLYCLAW_STATE_FILE", &c.Bot.StateFile)
	envStr("REPLYCLAW_SCHEDULE", &c.Schedule.Active)

	if v := os.Getenv("REPLYCLAW_PREMIUM"); v != "" {
		c.Bot.Premium = v == "true" || v == "1"
	}
	if v := os.Getenv("REPLYCLAW_MAX_REPLIES_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Bot.MaxRepliesPerHour = n
		}
	}
	if v := os.Getenv("REPLYCLAW_MIN_POLL_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Bot.MinPollIntervalSec = n
		}
	}

	envStr("REPLYCLAW_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("REPLYCLAW_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	if v := os.Getenv("REPLYCLAW_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// requiredKeys maps config keys to the env var that can supply them.
var requiredKeys = []struct {
	key string
	env string
	get func(*Config) string
}{
	{"twitter.bearer_token", "REPLYCLAW_TWITTER_BEARER_TOKEN", func(c *Config) string { return c.Twitter.BearerToken }},
	{"twitter.api_key", "REPLYCLAW_TWITTER_API_KEY", func(c *Config) string { return c.Twitter.APIKey }},
	{"twitter.api_secret", "REPLYCLAW_TWITTER_API_SECRET", func(c *Config) string { return c.Twitter.APISecret }},
	{"twitter.access_token", "REPLYCLAW_TWITTER_ACCESS_TOKEN", func(c *Config) string { return c.Twitter.AccessToken }},
	{"twitter.access_secret", "REPLYCLAW_TWITTER_ACCESS_SECRET", func(c *Config) string { return c.Twitter.AccessSecret }},
	{"venice.api_key", "REPLYCLAW_VENICE_API_KEY", func(c *Config) string { return c.Venice.APIKey }},
}

// Validate checks that every required credential is present.
// All missing keys are reported in a single error so the operator can
// fix them in one pass.
func (c *Config) Validate() error {
	var missing []string
	for _, rk := range requiredKeys {
		if rk.get(c) == "" {
			missing = append(missing, fmt.Sprintf("%s (env %s)", rk.key, rk.env))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// CharLimit returns the active reply character budget.
func (c *Config) CharLimit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Bot.Premium {
		return c.Bot.PremiumCharLimit
	}
	return c.Bot.StandardCharLimit
}

// Tunables returns a snapshot of the hot-reloadable sections.
func (c *Config) Tunables() (BotConfig, ScheduleConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Bot, c.Schedule
}

// ReplaceTunables swaps in new tunables from a reloaded config file.
// Credentials are deliberately left untouched.
func (c *Config) ReplaceTunables(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bot = src.Bot
	c.Schedule = src.Schedule
}
