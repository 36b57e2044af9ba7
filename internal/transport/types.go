// Package transport holds the normalized chat events delivered to the
// dispatcher and the outbound send surface bound to a channel.
package transport

import (
	"context"

	"twitchbot/internal/model"
)

type EventKind string

const (
	EventChat      EventKind = "chat"
	EventRaid      EventKind = "raid"
	EventSubscribe EventKind = "subscribe"
)

// Event is one incoming transport notification. Exactly one payload is set.
type Event struct {
	Kind      EventKind
	Chat      *ChatEvent
	Raid      *RaidEvent
	Subscribe *SubscribeEvent
}

// Channel returns the lowercase channel login the event belongs to.
func (e Event) Channel() string {
	switch {
	case e.Chat != nil:
		return e.Chat.Broadcaster.Login
	case e.Raid != nil:
		return e.Raid.Broadcaster.Login
	case e.Subscribe != nil:
		return e.Subscribe.Broadcaster.Login
	}
	return ""
}

type Identity struct {
	ID          string
	Login       string
	DisplayName string
}

// Sender emits chat text into the channel an event came from.
type Sender interface {
	Say(ctx context.Context, text string) error
	// Action sends a "/me" styled message.
	Action(ctx context.Context, text string) error
}

// ReplySender adds threaded replies, available for chat messages only.
type ReplySender interface {
	Sender
	Reply(ctx context.Context, parentID, text string) error
}

type ChatEvent struct {
	MessageID   string
	Broadcaster Identity
	User        Identity
	Level       model.UserLevel
	Text        string

	Out ReplySender
}

type RaidEvent struct {
	Broadcaster Identity
	User        Identity
	Level       model.UserLevel
	ViewerCount int

	Out Sender
}

type SubscribeEvent struct {
	Broadcaster Identity
	User        Identity
	Level       model.UserLevel
	// Tier is "1000", "2000", "3000" or "Prime".
	Tier             string
	CumulativeMonths int
	StreakMonths     int
	Resub            bool
	Message          string

	Out Sender
}

// Adapter is a chat connection that delivers events and tracks joined channels.
type Adapter interface {
	Start(ctx context.Context, out chan<- Event) error
	Stop(ctx context.Context) error
	// SyncChannels joins missing channels and departs the ones not listed.
	SyncChannels(channels []string)
}
