// Package twitch adapts the Twitch IRC chat connection to transport events.
package twitch

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	irc "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"twitchbot/internal/model"
	rtsup "twitchbot/internal/runtime/supervisor"
	kit "twitchbot/internal/transport"
	logx "twitchbot/pkg/logx"
)

type Config struct {
	Username string
	OAuth    string
	// RatePerSec bounds outbound messages across all channels. Zero means 1.
	RatePerSec float64
	Burst      int
}

// ircClient is the subset of *irc.Client the adapter drives.
type ircClient interface {
	OnPrivateMessage(func(irc.PrivateMessage))
	OnUserNoticeMessage(func(irc.UserNoticeMessage))
	OnConnect(func())
	OnReconnectMessage(func(irc.ReconnectMessage))
	Join(channels ...string)
	Depart(channel string)
	Say(channel, text string)
	Reply(channel, parentMsgID, text string)
	Connect() error
	Disconnect() error
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	client  ircClient
	limiter *rate.Limiter

	out atomic.Value // stores (chan<- kit.Event)

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	joinMu sync.Mutex
	joined map[string]bool

	dropped atomic.Uint64
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("twitch username is empty")
	}
	if strings.TrimSpace(cfg.OAuth) == "" {
		return nil, errors.New("twitch oauth token is empty")
	}
	oauth := cfg.OAuth
	if !strings.HasPrefix(oauth, "oauth:") {
		oauth = "oauth:" + oauth
	}
	return newWithClient(cfg, irc.NewClient(strings.ToLower(cfg.Username), oauth), log), nil
}

func newWithClient(cfg Config, c ircClient, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 3
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		client:  c,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		joined:  map[string]bool{},
	}
	var nilOut chan<- kit.Event
	a.out.Store(nilOut)
	a.registerHandlers()
	return a
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.client.OnPrivateMessage(func(m irc.PrivateMessage) {
		a.emit(kit.Event{Kind: kit.EventChat, Chat: a.chatEvent(m)})
	})
	a.client.OnUserNoticeMessage(func(m irc.UserNoticeMessage) {
		switch m.MsgID {
		case "raid":
			a.emit(kit.Event{Kind: kit.EventRaid, Raid: a.raidEvent(m)})
		case "sub", "resub":
			a.emit(kit.Event{Kind: kit.EventSubscribe, Subscribe: a.subEvent(m)})
		}
	})
	a.client.OnConnect(func() {
		a.log.Info("connected to twitch irc", logx.String("user", a.cfg.Username))
	})
	a.client.OnReconnectMessage(func(irc.ReconnectMessage) {
		a.log.Warn("twitch irc requested reconnect")
	})
}

func (a *Adapter) emit(ev kit.Event) {
	out, _ := a.out.Load().(chan<- kit.Event)
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "twitch.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped events (avoid noisy per-event logs).
	sup.Go0("events.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.dropped.Swap(0); n > 0 {
				a.log.Warn("incoming events dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("irc.disconnect_on_cancel", func(c context.Context) {
		<-c.Done()
		if err := a.client.Disconnect(); err != nil && !errors.Is(err, irc.ErrConnectionIsNotOpen) {
			a.log.Debug("irc disconnect", logx.Err(err))
		}
	})

	// Connect blocks for the lifetime of the connection and reconnects on its
	// own; an error return means the client gave up, so restart it.
	sup.GoRestart("irc.connect", func(c context.Context) error {
		err := a.client.Connect()
		if errors.Is(err, irc.ErrClientDisconnected) {
			return nil
		}
		return err
	}, rtsup.WithRestartBackoff(time.Second, time.Minute))

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.running = false
	a.sup = nil
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// SyncChannels joins newly configured channels and departs removed ones.
func (a *Adapter) SyncChannels(channels []string) {
	want := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if ch = normalizeChannel(ch); ch != "" {
			want[ch] = true
		}
	}

	a.joinMu.Lock()
	defer a.joinMu.Unlock()
	var join []string
	for ch := range want {
		if !a.joined[ch] {
			join = append(join, ch)
			a.joined[ch] = true
		}
	}
	for ch := range a.joined {
		if !want[ch] {
			a.client.Depart(ch)
			delete(a.joined, ch)
			a.log.Info("channel departed", logx.String("channel", ch))
		}
	}
	if len(join) > 0 {
		a.client.Join(join...)
		for _, ch := range join {
			a.log.Info("channel joined", logx.String("channel", ch))
		}
	}
}

// Joined lists the channels currently tracked as joined.
func (a *Adapter) Joined() []string {
	a.joinMu.Lock()
	defer a.joinMu.Unlock()
	out := make([]string, 0, len(a.joined))
	for ch := range a.joined {
		out = append(out, ch)
	}
	return out
}

func (a *Adapter) send(ctx context.Context, fn func()) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	fn()
	return nil
}

// channelSender binds outbound calls to one channel.
type channelSender struct {
	a       *Adapter
	channel string
}

func (s channelSender) Say(ctx context.Context, text string) error {
	return s.a.send(ctx, func() { s.a.client.Say(s.channel, text) })
}

func (s channelSender) Action(ctx context.Context, text string) error {
	return s.a.send(ctx, func() { s.a.client.Say(s.channel, "/me "+text) })
}

func (s channelSender) Reply(ctx context.Context, parentID, text string) error {
	if parentID == "" {
		return s.Say(ctx, text)
	}
	return s.a.send(ctx, func() { s.a.client.Reply(s.channel, parentID, text) })
}

func (a *Adapter) sender(channel string) channelSender {
	return channelSender{a: a, channel: normalizeChannel(channel)}
}

func (a *Adapter) chatEvent(m irc.PrivateMessage) *kit.ChatEvent {
	ch := normalizeChannel(m.Channel)
	return &kit.ChatEvent{
		MessageID:   m.ID,
		Broadcaster: kit.Identity{ID: m.RoomID, Login: ch, DisplayName: ch},
		User:        identity(m.User),
		Level:       LevelFromBadges(m.User.Badges, m.User.Name == ch),
		Text:        m.Message,
		Out:         a.sender(ch),
	}
}

func (a *Adapter) raidEvent(m irc.UserNoticeMessage) *kit.RaidEvent {
	ch := normalizeChannel(m.Channel)
	viewers, _ := strconv.Atoi(m.MsgParams["msg-param-viewerCount"])
	return &kit.RaidEvent{
		Broadcaster: kit.Identity{ID: m.RoomID, Login: ch, DisplayName: ch},
		User:        identity(m.User),
		Level:       LevelFromBadges(m.User.Badges, false),
		ViewerCount: viewers,
		Out:         a.sender(ch),
	}
}

func (a *Adapter) subEvent(m irc.UserNoticeMessage) *kit.SubscribeEvent {
	ch := normalizeChannel(m.Channel)
	months, _ := strconv.Atoi(m.MsgParams["msg-param-cumulative-months"])
	streak := 0
	if m.MsgParams["msg-param-should-share-streak"] == "1" {
		streak, _ = strconv.Atoi(m.MsgParams["msg-param-streak-months"])
	}
	return &kit.SubscribeEvent{
		Broadcaster:      kit.Identity{ID: m.RoomID, Login: ch, DisplayName: ch},
		User:             identity(m.User),
		Level:            LevelFromBadges(m.User.Badges, m.User.Name == ch),
		Tier:             m.MsgParams["msg-param-sub-plan"],
		CumulativeMonths: months,
		StreakMonths:     streak,
		Resub:            m.MsgID == "resub",
		Message:          m.Message,
		Out:              a.sender(ch),
	}
}

func identity(u irc.User) kit.Identity {
	name := u.DisplayName
	if name == "" {
		name = u.Name
	}
	return kit.Identity{ID: u.ID, Login: strings.ToLower(u.Name), DisplayName: name}
}

// LevelFromBadges maps IRC badges to the permission ordinal. Badge values are
// versions (subscriber/0 is a first-month sub), so only presence counts.
func LevelFromBadges(badges map[string]int, isOwner bool) model.UserLevel {
	has := func(name string) bool {
		_, ok := badges[name]
		return ok
	}
	switch {
	case isOwner || has("broadcaster"):
		return model.LevelBroadcaster
	case has("moderator"):
		return model.LevelModerator
	case has("vip"):
		return model.LevelVIP
	case has("subscriber") || has("founder"):
		return model.LevelSub
	}
	return model.LevelViewer
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}
