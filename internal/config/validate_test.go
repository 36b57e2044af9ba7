package config

import (
	"encoding/json"
	"strings"
	"testing"

	"twitchbot/internal/model"
)

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func validConfig() *Config {
	return &Config{
		Twitch: TwitchConfig{Username: "bot"},
		Channels: map[string]*model.ChannelConfig{
			"streamer": {
				Name: "streamer",
				Commands: []model.CommandDef{
					{Command: "!hello", Aliases: []string{"!hi"}, Message: "hi"},
				},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	warnings, err := Validate(validConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestValidateRejects(t *testing.T) {
	clipCfg, _ := json.Marshal(model.ClipConfig{Discord: &model.DiscordConfig{Webhook: "https://discord.example/x"}})

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing username", func(c *Config) { c.Twitch.Username = "" }, "twitch.username"},
		{"trigger without prefix", func(c *Config) {
			c.Channels["streamer"].Commands[0].Aliases = []string{"hi"}
		}, `trigger "hi"`},
		{"negative cooldown", func(c *Config) {
			c.Channels["streamer"].Commands[0].Cooldown = intp(-1)
		}, "cooldown must be >= 0"},
		{"unknown special", func(c *Config) {
			c.Channels["streamer"].Commands[0].SpecialCommand = "CHATBOT_TIMER"
		}, "unknown special_command"},
		{"clip webhook without message", func(c *Config) {
			cmd := &c.Channels["streamer"].Commands[0]
			cmd.SpecialCommand = model.SpecialClip
			cmd.SpecialCommandConfig = clipCfg
		}, "discord.message is required"},
		{"bad storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "mongo"} }, "unknown storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path is required"},
		{"bad webhook duration", func(c *Config) { c.Webhook = &WebhookConfig{RetryBase: "soon"} }, "webhook.retry_base"},
		{"bad prune schedule", func(c *Config) { c.Maintenance.PruneSchedule = "every so often" }, "maintenance.prune_schedule"},
		{"whitespace prefix", func(c *Config) { c.Dispatch.Prefix = "! !" }, "dispatch.prefix"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			_, err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateWarnsOnShadowedTriggers(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Channels["streamer"]
	ch.Commands = append(ch.Commands,
		model.CommandDef{Command: "!hey", Aliases: []string{"!hi"}, Message: "hey"},
		model.CommandDef{Command: "!hello", Active: boolp(false), Message: "off"},
	)
	ch.Actions = map[model.ActionType]model.ActionDef{"ON_FOLLOW": {Message: "x"}}

	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("duplicates must not be fatal: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected shadow and action warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], `"!hi" of !hey is shadowed by !hello`) {
		t.Fatalf("warning: %s", warnings[0])
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Logging.Level = "debug"
	b.Twitch.OAuth = "secret"
	b.Channels["streamer"].Commands[0].Message = "hello"
	b.Channels["other"] = &model.ChannelConfig{Name: "other"}

	sections, _, channels := SummarizeConfigChange(a, b)
	if strings.Join(sections, ",") != "channels,logging,twitch" {
		t.Fatalf("sections: %v", sections)
	}
	if strings.Join(channels, ",") != "other,streamer" {
		t.Fatalf("channels: %v", channels)
	}

	if s, _, _ := SummarizeConfigChange(a, validConfig()); len(s) != 0 {
		t.Fatalf("identical configs must report no change: %v", s)
	}
}
