package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"twitchbot/internal/model"
)

// DefaultPrefix is used when dispatch.prefix is empty.
const DefaultPrefix = "!"

// DefaultPruneSchedule is used when maintenance.prune_schedule is empty.
const DefaultPruneSchedule = "@every 1m"

// Prefix returns the effective command prefix.
func (c *Config) Prefix() string {
	if c == nil || strings.TrimSpace(c.Dispatch.Prefix) == "" {
		return DefaultPrefix
	}
	return strings.TrimSpace(c.Dispatch.Prefix)
}

// PruneSchedule returns the effective cooldown prune schedule.
func (c *Config) PruneSchedule() string {
	if c == nil || strings.TrimSpace(c.Maintenance.PruneSchedule) == "" {
		return DefaultPruneSchedule
	}
	return strings.TrimSpace(c.Maintenance.PruneSchedule)
}

// Validate checks cfg and returns every problem found. Warnings describe
// configurations that load but are probably mistakes, such as a trigger
// shadowed by an earlier command.
func Validate(cfg *Config) (warnings []string, err error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Twitch.Username) == "" {
		fail("twitch.username is required")
	}
	if cfg.Twitch.RatePerSec < 0 {
		fail("twitch.rate_per_sec must be >= 0")
	}
	if cfg.Twitch.Burst < 0 {
		fail("twitch.burst must be >= 0")
	}

	prefix := cfg.Prefix()
	if strings.ContainsAny(prefix, " \t\r\n") {
		fail("dispatch.prefix must not contain whitespace")
	}
	if cfg.Dispatch.Workers < 0 {
		fail("dispatch.workers must be >= 0")
	}
	if cfg.Dispatch.QueueSize < 0 {
		fail("dispatch.queue_size must be >= 0")
	}

	if w := cfg.Webhook; w != nil {
		if w.Workers < 0 || w.QueueSize < 0 || w.RetryMax < 0 || w.RatePerSec < 0 {
			fail("webhook: workers, queue_size, retry_max and rate_per_sec must be >= 0")
		}
		for path, raw := range map[string]string{
			"webhook.retry_base":      w.RetryBase,
			"webhook.retry_max_delay": w.RetryMaxDelay,
			"webhook.timeout":         w.Timeout,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				fail("storage.path is required when storage.driver=sqlite")
			}
		default:
			fail("unknown storage.driver: %s", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := cron.ParseStandard(cfg.PruneSchedule()); err != nil {
		fail("maintenance.prune_schedule: %w", err)
	}

	names := cfg.ChannelNames()
	sort.Strings(names)
	for _, name := range names {
		w, e := validateChannel(cfg.Channels[name], prefix)
		warnings = append(warnings, w...)
		errs = append(errs, e...)
	}
	return warnings, errors.Join(errs...)
}

func validateChannel(ch *model.ChannelConfig, prefix string) (warnings []string, errs []error) {
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("channels.%s: "+format, append([]any{ch.Name}, args...)...))
	}
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf("channels.%s: "+format, append([]any{ch.Name}, args...)...))
	}

	seen := map[string]string{}
	for i := range ch.Commands {
		cmd := &ch.Commands[i]
		if strings.TrimSpace(cmd.Command) == "" {
			fail("commands[%d].command is required", i)
			continue
		}
		for _, t := range cmd.Triggers() {
			if !strings.HasPrefix(t, prefix) {
				fail("%s: trigger %q must start with %q", cmd.Command, t, prefix)
			}
			if strings.ContainsAny(t, " \t") {
				fail("%s: trigger %q must be a single token", cmd.Command, t)
			}
			if !cmd.IsActive() {
				continue
			}
			if owner, dup := seen[t]; dup {
				warn("trigger %q of %s is shadowed by %s", t, cmd.Command, owner)
				continue
			}
			seen[t] = cmd.Command
		}
		if cmd.Cooldown != nil && *cmd.Cooldown < 0 {
			fail("%s: cooldown must be >= 0", cmd.Command)
		}
		if cmd.SpecialCommand != "" && !cmd.IsClip() {
			fail("%s: unknown special_command %q", cmd.Command, cmd.SpecialCommand)
		}
		if cmd.IsClip() {
			cc, err := cmd.ClipConfig()
			if err != nil {
				fail("%s: special_command_config: %w", cmd.Command, err)
				continue
			}
			if d := cc.Discord; d != nil && strings.TrimSpace(d.Webhook) != "" {
				u, err := url.Parse(d.Webhook)
				if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
					fail("%s: discord.webhook must be an http(s) url", cmd.Command)
				}
				if strings.TrimSpace(d.Message) == "" {
					fail("%s: discord.message is required when discord.webhook is set", cmd.Command)
				}
			}
		}
	}

	for t := range ch.Actions {
		if t != model.ActionOnRaid && t != model.ActionOnSub {
			warn("unknown action type %q is ignored", string(t))
		}
	}
	return warnings, errs
}
