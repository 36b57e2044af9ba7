package model

import (
	"encoding/json"
	"testing"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestCommandMatchesCaseSensitiveAndAliases(t *testing.T) {
	cmd := CommandDef{Command: "!hi", Aliases: []string{"!hello"}}

	cases := []struct {
		token string
		want  bool
	}{
		{"!hi", true},
		{"!hello", true},
		{"!HI", false},
		{"!Hello", false},
		{"hi", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			if got := cmd.Matches(tc.token); got != tc.want {
				t.Fatalf("Matches(%q)=%v want %v", tc.token, got, tc.want)
			}
		})
	}
}

func TestFindCommandFirstMatchWinsAndSkipsInactive(t *testing.T) {
	ch := &ChannelConfig{
		Name: "chan",
		Commands: []CommandDef{
			{Command: "!dice", Message: "off", Active: boolPtr(false)},
			{Command: "!roll", Aliases: []string{"!dice"}, Message: "first"},
			{Command: "!dice", Message: "second"},
		},
	}
	got, ok := ch.FindCommand("!dice")
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.Message != "first" {
		t.Fatalf("expected first active match, got %q", got.Message)
	}
	if _, ok := ch.FindCommand("!nope"); ok {
		t.Fatalf("unexpected match for unknown command")
	}

	var nilCh *ChannelConfig
	if _, ok := nilCh.FindCommand("!dice"); ok {
		t.Fatalf("nil channel must not match")
	}
}

func TestCommandDefaults(t *testing.T) {
	c := CommandDef{Command: "!x"}
	if c.CooldownSeconds() != DefaultCooldownSeconds {
		t.Fatalf("default cooldown=%d", c.CooldownSeconds())
	}
	if c.ReplyMode() != ModeReply {
		t.Fatalf("default mode=%v", c.ReplyMode())
	}
	c.Cooldown = intPtr(0)
	c.AsReply = boolPtr(false)
	if c.CooldownSeconds() != 0 {
		t.Fatalf("explicit zero cooldown=%d", c.CooldownSeconds())
	}
	if c.ReplyMode() != ModeSay {
		t.Fatalf("as_reply=false mode=%v", c.ReplyMode())
	}
}

func TestUserLevelOrderAndJSON(t *testing.T) {
	order := []UserLevel{LevelViewer, LevelSub, LevelVIP, LevelModerator, LevelBroadcaster}
	for i := 1; i < len(order); i++ {
		if !order[i].AtLeast(order[i-1]) || order[i-1].AtLeast(order[i]) {
			t.Fatalf("bad order between %v and %v", order[i-1], order[i])
		}
	}

	var c CommandDef
	raw := `{"command":"!so","user_level":"moderator","cooldown_type":"user","cooldown":5,
		"special_command":"chatbot_clip","special_command_config":{"discord":{"webhook":"http://x","message":"m"}}}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.UserLevel != LevelModerator || c.CooldownType != ScopeUser || c.CooldownSeconds() != 5 {
		t.Fatalf("unexpected decode: %+v", c)
	}
	if !c.IsClip() {
		t.Fatalf("expected clip command")
	}
	cc, err := c.ClipConfig()
	if err != nil || cc.Discord == nil || cc.Discord.Webhook != "http://x" {
		t.Fatalf("clip config=%+v err=%v", cc, err)
	}

	if err := json.Unmarshal([]byte(`{"user_level":"king"}`), &c); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestChannelAction(t *testing.T) {
	ch := &ChannelConfig{Actions: map[ActionType]ActionDef{
		ActionOnRaid: {Message: "raid"},
		ActionOnSub:  {Message: "sub", Active: boolPtr(false)},
	}}
	if a, ok := ch.Action(ActionOnRaid); !ok || a.Message != "raid" {
		t.Fatalf("raid action=%v ok=%v", a, ok)
	}
	if _, ok := ch.Action(ActionOnSub); ok {
		t.Fatalf("inactive sub action must be absent")
	}
	if DispatchKey("chan", "!hi") != "chan::!hi" {
		t.Fatalf("dispatch key format")
	}
}
