package config

import (
	"os"
	"strings"

	"twitchbot/internal/model"
)

// Environment variables that override secrets in the config file.
const (
	EnvOAuth        = "TWITCH_OAUTH"
	EnvClientID     = "TWITCH_CLIENT_ID"
	EnvClientSecret = "TWITCH_CLIENT_SECRET"
	EnvAccessToken  = "TWITCH_ACCESS_TOKEN"
)

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Twitch.OAuth, EnvOAuth)
	set(&cfg.Twitch.ClientID, EnvClientID)
	set(&cfg.Twitch.ClientSecret, EnvClientSecret)
	set(&cfg.Twitch.AccessToken, EnvAccessToken)
}

// normalize lowercases channel keys and fills ChannelConfig.Name.
func normalize(cfg *Config) {
	if len(cfg.Channels) == 0 {
		return
	}
	out := make(map[string]*model.ChannelConfig, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
		if key == "" {
			continue
		}
		if ch == nil {
			ch = &model.ChannelConfig{}
		}
		ch.Name = key
		out[key] = ch
	}
	cfg.Channels = out
}
