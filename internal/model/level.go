package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserLevel is the chat permission ordinal. Comparison is by order:
// VIEWER < SUB < VIP < MODERATOR < BROADCASTER.
type UserLevel int

const (
	LevelViewer UserLevel = iota
	LevelSub
	LevelVIP
	LevelModerator
	LevelBroadcaster
)

var levelNames = [...]string{"VIEWER", "SUB", "VIP", "MODERATOR", "BROADCASTER"}

func (l UserLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("UserLevel(%d)", int(l))
	}
	return levelNames[l]
}

// AtLeast reports whether l satisfies the required minimum.
func (l UserLevel) AtLeast(min UserLevel) bool { return l >= min }

func ParseUserLevel(s string) (UserLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "VIEWER", "EVERYONE":
		return LevelViewer, nil
	case "SUB", "SUBSCRIBER":
		return LevelSub, nil
	case "VIP":
		return LevelVIP, nil
	case "MOD", "MODERATOR":
		return LevelModerator, nil
	case "BROADCASTER", "OWNER":
		return LevelBroadcaster, nil
	default:
		return LevelViewer, fmt.Errorf("unknown user level %q", s)
	}
}

func (l UserLevel) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

func (l *UserLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("user level must be a string: %w", err)
	}
	v, err := ParseUserLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// CooldownScope selects which counter a command's cooldown runs on.
type CooldownScope int

const (
	ScopeGlobal CooldownScope = iota
	ScopeUser
)

func (s CooldownScope) String() string {
	if s == ScopeUser {
		return "USER"
	}
	return "GLOBAL"
}

func ParseCooldownScope(s string) (CooldownScope, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "GLOBAL":
		return ScopeGlobal, nil
	case "USER", "PER_USER":
		return ScopeUser, nil
	default:
		return ScopeGlobal, fmt.Errorf("unknown cooldown type %q", s)
	}
}

func (s CooldownScope) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *CooldownScope) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("cooldown type must be a string: %w", err)
	}
	v, err := ParseCooldownScope(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ReplyMode selects how a command response is emitted.
type ReplyMode int

const (
	ModeReply ReplyMode = iota
	ModeSay
)

func (m ReplyMode) String() string {
	if m == ModeSay {
		return "SAY"
	}
	return "REPLY"
}
