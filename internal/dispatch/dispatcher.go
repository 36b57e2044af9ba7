// Package dispatch turns normalized chat events into templated responses.
//
// Chat messages go through lookup, tokenize, match, authorize, cooldown gate,
// render, optional clip workflow and emit. The cooldown always starts once a
// command has passed its gates, even when rendering or sending fails. Raid and
// subscription notices render their channel action without gating.
//
// No handler returns an error to its caller; failures are logged and
// published on the event bus.
package dispatch

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"twitchbot/internal/cooldown"
	"twitchbot/internal/eventbus"
	"twitchbot/internal/model"
	"twitchbot/internal/platform"
	"twitchbot/internal/template"
	kit "twitchbot/internal/transport"
	"twitchbot/internal/webhook"
	logx "twitchbot/pkg/logx"
)

// DefaultPrefix marks a chat message as a command invocation.
const DefaultPrefix = "!"

// ConfigSource resolves the live configuration of a channel.
type ConfigSource interface {
	Channel(name string) (*model.ChannelConfig, bool)
}

// Notifier queues a webhook message. *webhook.Service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, key, url string, msg webhook.Message) error
}

type Options struct {
	Config   ConfigSource
	Renderer *template.Renderer
	Cooldown *cooldown.Tracker
	API      platform.API
	Webhook  Notifier
	Bus      eventbus.Bus
	Log      logx.Logger
	Prefix   string
	// NewID returns a request id; defaults to uuid.NewString.
	NewID func() string
}

type Dispatcher struct {
	cfg      ConfigSource
	renderer *template.Renderer
	cd       *cooldown.Tracker
	api      platform.API
	hook     Notifier
	bus      eventbus.Bus
	log      logx.Logger
	newID    func() string

	prefix atomic.Value // string

	chat Handler
}

func New(opts Options) *Dispatcher {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	if opts.Cooldown == nil {
		opts.Cooldown = cooldown.New(cooldown.Options{Log: opts.Log})
	}
	if opts.Renderer == nil {
		reg := template.NewRegistry()
		template.RegisterBuiltins(reg, template.BuiltinOptions{})
		opts.Renderer = template.NewRenderer(template.Options{Registry: reg, API: opts.API, Log: opts.Log})
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	d := &Dispatcher{
		cfg:      opts.Config,
		renderer: opts.Renderer,
		cd:       opts.Cooldown,
		api:      opts.API,
		hook:     opts.Webhook,
		bus:      opts.Bus,
		log:      opts.Log,
		newID:    opts.NewID,
	}
	d.SetPrefix(opts.Prefix)
	// RequestLog wraps Recover so a recovered panic is published as a failure.
	d.chat = Chain(d.runCommand, RequestLog(d.bus), Recover())
	return d
}

// SetPrefix swaps the command prefix; empty restores DefaultPrefix.
func (d *Dispatcher) SetPrefix(p string) {
	if strings.TrimSpace(p) == "" {
		p = DefaultPrefix
	}
	d.prefix.Store(p)
}

func (d *Dispatcher) Prefix() string {
	p, _ := d.prefix.Load().(string)
	return p
}

// Handle routes one transport event to its handler.
func (d *Dispatcher) Handle(ctx context.Context, ev kit.Event) {
	eventbus.Emit(d.bus, eventbus.TopicChatEvent, eventbus.ChatEventSeen{Kind: string(ev.Kind), Channel: ev.Channel()})
	switch ev.Kind {
	case kit.EventChat:
		d.HandleChat(ctx, ev.Chat)
	case kit.EventRaid:
		d.HandleRaid(ctx, ev.Raid)
	case kit.EventSubscribe:
		d.HandleSubscribe(ctx, ev.Subscribe)
	default:
		d.log.Debug("unknown event kind", logx.String("kind", string(ev.Kind)))
	}
}

func (d *Dispatcher) channel(name string) (*model.ChannelConfig, bool) {
	if d.cfg == nil {
		return nil, false
	}
	ch, ok := d.cfg.Channel(strings.ToLower(name))
	if !ok || !ch.IsActive() {
		return nil, false
	}
	return ch, true
}

func (d *Dispatcher) publish(ev eventbus.DispatchEvent) {
	eventbus.Emit(d.bus, eventbus.TopicDispatch, ev)
}
