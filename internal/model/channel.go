package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCooldownSeconds applies when a command omits its cooldown.
const DefaultCooldownSeconds = 30

// SpecialClip tags a command that creates a clip after rendering its template.
const SpecialClip = "CHATBOT_CLIP"

// ActionType keys the per-channel event responses.
type ActionType string

const (
	ActionOnRaid ActionType = "ON_RAID"
	ActionOnSub  ActionType = "ON_SUB"
)

// ChannelConfig is one monitored channel. It is replaced wholesale on reload
// and must be treated as read-only by consumers.
type ChannelConfig struct {
	// Name is the lowercase channel login; filled from the config map key.
	Name     string                   `json:"-"`
	ID       string                   `json:"id,omitempty"`
	Active   *bool                    `json:"active,omitempty"`
	Commands []CommandDef             `json:"commands,omitempty"`
	Actions  map[ActionType]ActionDef `json:"actions,omitempty"`
}

func (c *ChannelConfig) IsActive() bool { return c != nil && (c.Active == nil || *c.Active) }

// FindCommand returns the first active command whose primary trigger or aliases
// equal token. Matching is exact and case-sensitive.
func (c *ChannelConfig) FindCommand(token string) (*CommandDef, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Commands {
		cmd := &c.Commands[i]
		if cmd.IsActive() && cmd.Matches(token) {
			return cmd, true
		}
	}
	return nil, false
}

// Action returns the active action configured for t.
func (c *ChannelConfig) Action(t ActionType) (*ActionDef, bool) {
	if c == nil || c.Actions == nil {
		return nil, false
	}
	a, ok := c.Actions[t]
	if !ok || !a.IsActive() {
		return nil, false
	}
	return &a, true
}

// CommandDef is a chat command. Immutable per reload cycle.
type CommandDef struct {
	Command      string        `json:"command"`
	Aliases      []string      `json:"aliases,omitempty"`
	Active       *bool         `json:"active,omitempty"`
	UserLevel    UserLevel     `json:"user_level"`
	CooldownType CooldownScope `json:"cooldown_type"`
	// Cooldown in seconds. Nil means DefaultCooldownSeconds.
	Cooldown *int   `json:"cooldown,omitempty"`
	Message  string `json:"message"`
	// AsReply defaults to true.
	AsReply *bool `json:"as_reply,omitempty"`

	SpecialCommand       string          `json:"special_command,omitempty"`
	SpecialCommandConfig json.RawMessage `json:"special_command_config,omitempty"`
}

func (c *CommandDef) IsActive() bool { return c.Active == nil || *c.Active }

// Triggers lists the primary command followed by its aliases.
func (c *CommandDef) Triggers() []string {
	out := make([]string, 0, 1+len(c.Aliases))
	out = append(out, c.Command)
	return append(out, c.Aliases...)
}

func (c *CommandDef) Matches(token string) bool {
	if token == "" {
		return false
	}
	for _, t := range c.Triggers() {
		if t == token {
			return true
		}
	}
	return false
}

func (c *CommandDef) CooldownSeconds() int {
	if c.Cooldown == nil {
		return DefaultCooldownSeconds
	}
	if *c.Cooldown < 0 {
		return 0
	}
	return *c.Cooldown
}

func (c *CommandDef) ReplyMode() ReplyMode {
	if c.AsReply == nil || *c.AsReply {
		return ModeReply
	}
	return ModeSay
}

func (c *CommandDef) IsClip() bool { return strings.EqualFold(c.SpecialCommand, SpecialClip) }

// ClipConfig decodes the clip special command configuration.
// A command without configuration yields a zero ClipConfig.
func (c *CommandDef) ClipConfig() (ClipConfig, error) {
	var cc ClipConfig
	if len(c.SpecialCommandConfig) == 0 || string(c.SpecialCommandConfig) == "null" {
		return cc, nil
	}
	if err := json.Unmarshal(c.SpecialCommandConfig, &cc); err != nil {
		return cc, fmt.Errorf("clip config for %s: %w", c.Command, err)
	}
	return cc, nil
}

type ClipConfig struct {
	Discord *DiscordConfig `json:"discord,omitempty"`
}

type DiscordConfig struct {
	Webhook string `json:"webhook,omitempty"`
	Message string `json:"message"`
}

// ActionDef is an event response (raid, subscription).
type ActionDef struct {
	Active       *bool  `json:"active,omitempty"`
	Message      string `json:"message"`
	AutoShoutout bool   `json:"auto_shoutout,omitempty"`
}

func (a *ActionDef) IsActive() bool { return a.Active == nil || *a.Active }

// DispatchKey identifies a command's rate-limit bucket and correlates its logs.
func DispatchKey(channel, command string) string { return channel + "::" + command }
