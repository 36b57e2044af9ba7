package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"twitchbot/internal/platform"
	"twitchbot/internal/template"
	"twitchbot/internal/webhook"
	logx "twitchbot/pkg/logx"
)

const clipURLToken = "${clipUrl}"

// runClip creates a clip of the channel, announces it on the configured
// Discord webhook and substitutes ${clipUrl} in the rendered response.
// Webhook problems are logged and never fail the command.
func (d *Dispatcher) runClip(ctx context.Context, req *Request, rendered string) (string, error) {
	if d.api == nil {
		return "", errors.New("clip: platform api unavailable")
	}
	cc, err := req.Command.ClipConfig()
	if err != nil {
		return "", err
	}
	broadcasterID, err := d.broadcasterID(ctx, req)
	if err != nil {
		return "", fmt.Errorf("clip: %w", err)
	}

	clip, err := d.api.CreateClip(ctx, broadcasterID)
	if err != nil {
		return "", fmt.Errorf("clip: %w", err)
	}
	clipURL := platform.ClipURL(clip.ID)
	req.Logger.Info("clip created", logx.String("clip_id", clip.ID))

	if cc.Discord != nil && strings.TrimSpace(cc.Discord.Webhook) != "" {
		d.announceClip(ctx, req, clip.ID, clipURL, cc.Discord.Webhook, cc.Discord.Message)
	}

	return strings.ReplaceAll(rendered, clipURLToken, clipURL), nil
}

func (d *Dispatcher) broadcasterID(ctx context.Context, req *Request) (string, error) {
	if id := req.Chat.Broadcaster.ID; id != "" {
		return id, nil
	}
	if id := req.Channel.ID; id != "" {
		return id, nil
	}
	u, err := d.api.UserByLogin(ctx, req.Channel.Name)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (d *Dispatcher) announceClip(ctx context.Context, req *Request, clipID, clipURL, hookURL, tpl string) {
	if d.hook == nil {
		req.Logger.Warn("clip webhook configured but webhook service is disabled")
		return
	}
	meta, err := d.api.ClipByID(ctx, clipID)
	if err != nil {
		req.Logger.Warn("clip metadata lookup failed; skipping webhook", logx.Err(err))
		return
	}

	ev := req.Chat
	vars := template.NewVars().
		Set("broadcasterName", req.Channel.Name).
		Set("userName", ev.User.Login).
		Set("userDisplayName", ev.User.DisplayName).
		Set("clipUrl", clipURL)
	content := d.renderer.Render(ctx, vars, nil, tpl)

	if err := d.hook.Notify(ctx, req.Key, hookURL, ClipMessage(content, meta, clipURL)); err != nil {
		req.Logger.Warn("clip webhook enqueue failed", logx.Err(err))
	}
}

// ClipMessage builds the Discord announcement of a clip.
func ClipMessage(content string, clip platform.Clip, clipURL string) webhook.Message {
	name := clip.BroadcasterName
	url := clip.URL
	if url == "" {
		url = clipURL
	}
	e := webhook.Embed{
		Title:       fmt.Sprintf("%s - %s", name, clip.Title),
		Description: fmt.Sprintf("Watch %s's clip titled %q", name, clip.Title),
		URL:         url,
		Author:      &webhook.EmbedAuthor{Name: "Twitch"},
	}
	if clip.ThumbnailURL != "" {
		e.Thumbnail = &webhook.EmbedImage{URL: clip.ThumbnailURL}
	}
	return webhook.Message{Content: content, Embeds: []webhook.Embed{e}}
}
