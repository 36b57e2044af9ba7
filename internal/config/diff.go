package config

import (
	"reflect"
	"sort"
	"strings"

	logx "twitchbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the names of channels that were added, removed or edited.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	// Twitch (never log secrets, only whether they are set)
	ot, nt := oldCfg.Twitch, newCfg.Twitch
	if ot.Username != nt.Username || ot.RatePerSec != nt.RatePerSec || ot.Burst != nt.Burst ||
		strings.TrimSpace(ot.APIBaseURL) != strings.TrimSpace(nt.APIBaseURL) ||
		ot.OAuth != nt.OAuth || ot.ClientID != nt.ClientID ||
		ot.ClientSecret != nt.ClientSecret || ot.AccessToken != nt.AccessToken {
		changed = append(changed, "twitch")
		attrs = append(attrs,
			logx.String("twitch.username", nt.Username),
			logx.Bool("twitch.oauth_set", nt.OAuth != ""),
			logx.Bool("twitch.api_credentials_set", nt.ClientID != "" && nt.AccessToken != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.prefix", newCfg.Prefix()),
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
			logx.Int("dispatch.queue_size", newCfg.Dispatch.QueueSize),
		)
	}

	// Nil webhook section means runtime defaults.
	ow, nw := derefWebhook(oldCfg.Webhook), derefWebhook(newCfg.Webhook)
	if ow != nw {
		changed = append(changed, "webhook")
		attrs = append(attrs,
			logx.Int("webhook.workers", nw.Workers),
			logx.Int("webhook.retry_max", nw.RetryMax),
			logx.Bool("webhook.username_set", nw.Username != ""),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled), logx.String("metrics.addr", newCfg.Metrics.Addr))
	}

	if oldCfg.PruneSchedule() != newCfg.PruneSchedule() {
		changed = append(changed, "maintenance")
		attrs = append(attrs, logx.String("maintenance.prune_schedule", newCfg.PruneSchedule()))
	}

	chChanged := diffChannels(oldCfg, newCfg)
	if len(chChanged) > 0 {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.Int("channels.changed_count", len(chChanged)),
			logx.Int("channels.active_count", len(newCfg.ActiveChannelNames())),
		)
	}

	sort.Strings(changed)
	return changed, attrs, chChanged
}

func derefWebhook(w *WebhookConfig) WebhookConfig {
	if w == nil {
		return WebhookConfig{}
	}
	return *w
}

func diffChannels(oldCfg, newCfg *Config) []string {
	set := map[string]struct{}{}
	for k := range oldCfg.Channels {
		set[k] = struct{}{}
	}
	for k := range newCfg.Channels {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, inOld := oldCfg.Channels[name]
		n, inNew := newCfg.Channels[name]
		if inOld != inNew || hashJSON(o) != hashJSON(n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
