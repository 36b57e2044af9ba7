// Package twitchapi implements platform.API on top of the Twitch Helix REST API.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/nicklaw5/helix/v2"

	"twitchbot/internal/platform"
	logx "twitchbot/pkg/logx"
)

type Config struct {
	ClientID     string
	ClientSecret string
	// AccessToken is a user token for the bot account. Clip creation and
	// chatter listing require user scopes (clips:edit, moderator:read:chatters).
	AccessToken string
	HTTPClient  *http.Client
	// BaseURL overrides the Helix endpoint; tests point it at a local server.
	BaseURL string
}

type Client struct {
	log logx.Logger

	// helix.Client keeps the token on the struct; calls are serialized.
	mu     sync.Mutex
	client *helix.Client

	token string
	botID string
}

var _ platform.API = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("helix: client id is required")
	}
	opts := &helix.Options{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		UserAccessToken: strings.TrimPrefix(cfg.AccessToken, "oauth:"),
	}
	if cfg.HTTPClient != nil {
		opts.HTTPClient = cfg.HTTPClient
	}
	if cfg.BaseURL != "" {
		opts.APIBaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	c, err := helix.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{log: log, client: c, token: opts.UserAccessToken}, nil
}

func statusErr(op string, rc helix.ResponseCommon) error {
	if rc.StatusCode >= 200 && rc.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("helix %s: status %d: %s %s", op, rc.StatusCode, rc.Error, rc.ErrorMessage)
}

func (c *Client) UserByLogin(ctx context.Context, login string) (platform.User, error) {
	if err := ctx.Err(); err != nil {
		return platform.User{}, err
	}
	c.mu.Lock()
	resp, err := c.client.GetUsers(&helix.UsersParams{Logins: []string{login}})
	c.mu.Unlock()
	if err != nil {
		return platform.User{}, fmt.Errorf("helix get users: %w", err)
	}
	if err := statusErr("get users", resp.ResponseCommon); err != nil {
		return platform.User{}, err
	}
	if len(resp.Data.Users) == 0 {
		return platform.User{}, fmt.Errorf("user %q: %w", login, platform.ErrNotFound)
	}
	u := resp.Data.Users[0]
	return platform.User{ID: u.ID, Login: u.Login, DisplayName: u.DisplayName}, nil
}

func (c *Client) ChannelInfo(ctx context.Context, broadcasterID string) (platform.Channel, error) {
	if err := ctx.Err(); err != nil {
		return platform.Channel{}, err
	}
	c.mu.Lock()
	resp, err := c.client.GetChannelInformation(&helix.GetChannelInformationParams{
		BroadcasterIDs: []string{broadcasterID},
	})
	c.mu.Unlock()
	if err != nil {
		return platform.Channel{}, fmt.Errorf("helix get channel information: %w", err)
	}
	if err := statusErr("get channel information", resp.ResponseCommon); err != nil {
		return platform.Channel{}, err
	}
	if len(resp.Data.Channels) == 0 {
		return platform.Channel{}, fmt.Errorf("channel %q: %w", broadcasterID, platform.ErrNotFound)
	}
	ch := resp.Data.Channels[0]
	return platform.Channel{
		BroadcasterID:   ch.BroadcasterID,
		BroadcasterName: ch.BroadcasterName,
		GameName:        ch.GameName,
		Title:           ch.Title,
	}, nil
}

// Chatters lists the first page of chatters, using the bot account as moderator.
func (c *Client) Chatters(ctx context.Context, broadcasterID string) ([]platform.Chatter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	modID, err := c.moderatorID()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	resp, err := c.client.GetChannelChatChatters(&helix.GetChatChattersParams{
		BroadcasterID: broadcasterID,
		ModeratorID:   modID,
		First:         "1000",
	})
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("helix get chatters: %w", err)
	}
	if err := statusErr("get chatters", resp.ResponseCommon); err != nil {
		return nil, err
	}
	out := make([]platform.Chatter, 0, len(resp.Data.Chatters))
	for _, ch := range resp.Data.Chatters {
		out = append(out, platform.Chatter{ID: ch.UserID, Login: ch.UserLogin, Name: ch.Username})
	}
	return out, nil
}

func (c *Client) CreateClip(ctx context.Context, broadcasterID string) (platform.Clip, error) {
	if err := ctx.Err(); err != nil {
		return platform.Clip{}, err
	}
	c.mu.Lock()
	resp, err := c.client.CreateClip(&helix.CreateClipParams{BroadcasterID: broadcasterID})
	c.mu.Unlock()
	if err != nil {
		return platform.Clip{}, fmt.Errorf("helix create clip: %w", err)
	}
	if err := statusErr("create clip", resp.ResponseCommon); err != nil {
		return platform.Clip{}, err
	}
	if len(resp.Data.ClipEditURLs) == 0 {
		return platform.Clip{}, errors.New("helix create clip: no clip returned")
	}
	e := resp.Data.ClipEditURLs[0]
	return platform.Clip{ID: e.ID, URL: platform.ClipURL(e.ID), EditURL: e.EditURL}, nil
}

func (c *Client) ClipByID(ctx context.Context, id string) (platform.Clip, error) {
	if err := ctx.Err(); err != nil {
		return platform.Clip{}, err
	}
	c.mu.Lock()
	resp, err := c.client.GetClips(&helix.ClipsParams{IDs: []string{id}})
	c.mu.Unlock()
	if err != nil {
		return platform.Clip{}, fmt.Errorf("helix get clips: %w", err)
	}
	if err := statusErr("get clips", resp.ResponseCommon); err != nil {
		return platform.Clip{}, err
	}
	if len(resp.Data.Clips) == 0 {
		return platform.Clip{}, fmt.Errorf("clip %q: %w", id, platform.ErrNotFound)
	}
	cl := resp.Data.Clips[0]
	return platform.Clip{
		ID:              cl.ID,
		URL:             cl.URL,
		Title:           cl.Title,
		BroadcasterName: cl.BroadcasterName,
		ThumbnailURL:    cl.ThumbnailURL,
	}, nil
}

// moderatorID resolves the user id behind the access token once.
func (c *Client) moderatorID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botID != "" {
		return c.botID, nil
	}
	if c.token == "" {
		return "", errors.New("helix: user access token required")
	}
	ok, resp, err := c.client.ValidateToken(c.token)
	if err != nil {
		return "", fmt.Errorf("helix validate token: %w", err)
	}
	if !ok || resp.Data.UserID == "" {
		return "", errors.New("helix validate token: token rejected")
	}
	c.botID = resp.Data.UserID
	c.log.Debug("token validated", logx.String("bot_id", c.botID), logx.String("login", resp.Data.Login))
	return c.botID, nil
}
