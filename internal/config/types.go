package config

import (
	"twitchbot/internal/model"
)

type Config struct {
	Twitch  TwitchConfig  `json:"twitch"`
	Logging LoggingConfig `json:"logging"`

	// Dispatch controls command parsing and the event worker pool.
	Dispatch DispatchConfig `json:"dispatch,omitempty"`

	Webhook     *WebhookConfig    `json:"webhook,omitempty"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Metrics     MetricsConfig     `json:"metrics,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`

	// Channels is keyed by lowercase channel login. Keys are normalized on
	// parse and copied into ChannelConfig.Name.
	Channels map[string]*model.ChannelConfig `json:"channels"`
}

// TwitchConfig holds the IRC identity and the Helix API credentials.
// Secrets can be supplied through TWITCH_* environment variables instead.
type TwitchConfig struct {
	Username string `json:"username"`
	OAuth    string `json:"oauth,omitempty"` // IRC password, "oauth:" prefix optional

	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	AccessToken  string `json:"access_token,omitempty"` // user token, needs clips:edit
	APIBaseURL   string `json:"api_base_url,omitempty"`

	// Outbound chat rate limit (messages per second, burst).
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatchConfig controls the dispatcher.
//
// Defaults (when fields are omitted/zero):
//   - prefix: "!"
//   - workers: 4
//   - queue_size: 256
type DispatchConfig struct {
	Prefix    string `json:"prefix,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

// WebhookConfig controls the async Discord webhook pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the pipeline runs with defaults.
type WebhookConfig struct {
	Workers       int     `json:"workers,omitempty"`
	QueueSize     int     `json:"queue_size,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
	Timeout       string  `json:"timeout,omitempty"`

	// Username and AvatarURL are sent with every webhook message.
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./twitchbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9108"
	Path    string `json:"path,omitempty"` // default: "/metrics"
}

// MaintenanceConfig controls periodic housekeeping.
type MaintenanceConfig struct {
	// PruneSchedule is a cron spec or "@every <duration>"; default "@every 1m".
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// ChannelNames returns the configured channel logins, including inactive ones.
func (c *Config) ChannelNames() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		out = append(out, name)
	}
	return out
}

// ActiveChannelNames returns the logins of channels the bot should join.
func (c *Config) ActiveChannelNames() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Channels))
	for name, ch := range c.Channels {
		if ch.IsActive() {
			out = append(out, name)
		}
	}
	return out
}
