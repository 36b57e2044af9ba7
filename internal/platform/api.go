// Package platform describes the Twitch API surface the bot consumes.
package platform

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup yields no rows.
var ErrNotFound = errors.New("platform: not found")

type User struct {
	ID          string
	Login       string
	DisplayName string
}

type Channel struct {
	BroadcasterID   string
	BroadcasterName string
	GameName        string
	Title           string
}

type Chatter struct {
	ID    string
	Login string
	Name  string
}

type Clip struct {
	ID              string
	URL             string
	EditURL         string
	Title           string
	BroadcasterName string
	ThumbnailURL    string
}

// API is implemented by internal/platform/helix and by test fakes.
type API interface {
	UserByLogin(ctx context.Context, login string) (User, error)
	ChannelInfo(ctx context.Context, broadcasterID string) (Channel, error)
	Chatters(ctx context.Context, broadcasterID string) ([]Chatter, error)
	CreateClip(ctx context.Context, broadcasterID string) (Clip, error)
	ClipByID(ctx context.Context, id string) (Clip, error)
}

// ClipURL is the public address of a clip id.
func ClipURL(id string) string { return "https://clips.twitch.tv/" + id }
