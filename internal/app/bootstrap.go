package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"twitchbot/internal/config"
	"twitchbot/internal/metrics"
	"twitchbot/internal/platform/twitchapi"
	"twitchbot/internal/transport/twitch"
	"twitchbot/internal/webhook"
	logx "twitchbot/pkg/logx"
)

type Config = config.Config

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapTwitchConfig(cfg *Config) twitch.Config {
	return twitch.Config{
		Username:   strings.TrimSpace(cfg.Twitch.Username),
		OAuth:      strings.TrimSpace(cfg.Twitch.OAuth),
		RatePerSec: cfg.Twitch.RatePerSec,
		Burst:      cfg.Twitch.Burst,
	}
}

// mapAPIConfig reports false when no Helix credentials are configured; the
// bot then runs without API backed actions.
func mapAPIConfig(cfg *Config) (twitchapi.Config, bool) {
	t := cfg.Twitch
	if strings.TrimSpace(t.ClientID) == "" {
		return twitchapi.Config{}, false
	}
	return twitchapi.Config{
		ClientID:     strings.TrimSpace(t.ClientID),
		ClientSecret: strings.TrimSpace(t.ClientSecret),
		AccessToken:  strings.TrimSpace(t.AccessToken),
		BaseURL:      strings.TrimSpace(t.APIBaseURL),
	}, true
}

func mapWebhookConfig(cfg *Config) (webhook.Config, error) {
	w := cfg.Webhook
	if w == nil {
		w = &config.WebhookConfig{}
	}
	base, err := parseDurationOrDefault("webhook.retry_base", w.RetryBase, 500*time.Millisecond)
	if err != nil {
		return webhook.Config{}, err
	}
	maxDelay, err := parseDurationOrDefault("webhook.retry_max_delay", w.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return webhook.Config{}, err
	}
	timeout, err := parseDurationOrDefault("webhook.timeout", w.Timeout, 10*time.Second)
	if err != nil {
		return webhook.Config{}, err
	}
	retryMax := w.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}
	return webhook.Config{
		Workers:       w.Workers,
		QueueSize:     w.QueueSize,
		RatePerSec:    w.RatePerSec,
		RetryMax:      retryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		Timeout:       timeout,
		Username:      strings.TrimSpace(w.Username),
		AvatarURL:     strings.TrimSpace(w.AvatarURL),
	}, nil
}

func mapMetricsConfig(cfg *Config) metrics.ServerConfig {
	return metrics.ServerConfig{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
	}
}

// dispatchPool returns the worker count and queue size of the event pool.
func dispatchPool(cfg *Config) (workers, queue int) {
	workers, queue = cfg.Dispatch.Workers, cfg.Dispatch.QueueSize
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 256
	}
	return workers, queue
}

// validateConfig is the reload gate: it rejects invalid configs and logs warnings.
func validateConfig(log logx.Logger) func(context.Context, *Config) error {
	return func(_ context.Context, cfg *Config) error {
		warnings, err := config.Validate(cfg)
		for _, w := range warnings {
			log.Warn("config warning", logx.String("detail", w))
		}
		if err != nil {
			return err
		}
		if _, err := mapWebhookConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		return nil
	}
}
