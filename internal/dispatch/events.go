package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"twitchbot/internal/eventbus"
	"twitchbot/internal/model"
	"twitchbot/internal/template"
	kit "twitchbot/internal/transport"
	logx "twitchbot/pkg/logx"
)

// RaidMinViewers is the smallest raid that gets a response.
const RaidMinViewers = 2

// HandleRaid greets a raid of at least RaidMinViewers and, when enabled,
// follows up with a /shoutout of the raider.
func (d *Dispatcher) HandleRaid(ctx context.Context, ev *kit.RaidEvent) {
	if ev == nil || ev.ViewerCount < RaidMinViewers {
		return
	}
	ch, ok := d.channel(ev.Broadcaster.Login)
	if !ok {
		return
	}
	action, ok := ch.Action(model.ActionOnRaid)
	if !ok {
		return
	}
	d.runAction(ctx, kit.EventRaid, ch, action, ev.User, ev.Out, func(ctx context.Context, log logx.Logger) error {
		if !action.AutoShoutout {
			return nil
		}
		return ev.Out.Say(ctx, "/shoutout "+ev.User.Login)
	}, logx.Int("viewers", ev.ViewerCount))
}

// HandleSubscribe thanks a new or returning subscriber.
func (d *Dispatcher) HandleSubscribe(ctx context.Context, ev *kit.SubscribeEvent) {
	if ev == nil {
		return
	}
	ch, ok := d.channel(ev.Broadcaster.Login)
	if !ok {
		return
	}
	action, ok := ch.Action(model.ActionOnSub)
	if !ok {
		return
	}
	d.runAction(ctx, kit.EventSubscribe, ch, action, ev.User, ev.Out, nil,
		logx.String("tier", ev.Tier), logx.Int("months", ev.CumulativeMonths), logx.Bool("resub", ev.Resub))
}

func (d *Dispatcher) runAction(ctx context.Context, kind kit.EventKind, ch *model.ChannelConfig, action *model.ActionDef,
	user kit.Identity, out kit.Sender, after func(context.Context, logx.Logger) error, fields ...logx.Field) {
	reqID := d.newID()
	log := d.log.With(append([]logx.Field{
		logx.String("req_id", reqID),
		logx.String("kind", string(kind)),
		logx.String("channel", ch.Name),
		logx.User(user.Login),
	}, fields...)...)

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		if out == nil {
			return fmt.Errorf("%s event has no outbound sender", kind)
		}
		vars := template.NewVars().
			Set("userDisplayName", user.DisplayName).
			Set("userName", user.Login)
		msg := d.renderer.Render(ctx, vars, nil, action.Message)
		if strings.TrimSpace(msg) != "" {
			if err := out.Say(ctx, msg); err != nil {
				return err
			}
		}
		if after != nil {
			return after(ctx, log)
		}
		return nil
	}()

	ev := eventbus.DispatchEvent{
		ReqID:   reqID,
		Kind:    string(kind),
		Channel: ch.Name,
		User:    user.Login,
		Outcome: eventbus.OutcomeSent,
		TookMS:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		ev.Outcome = eventbus.OutcomeFailed
		ev.Error = err.Error()
		log.Error("event action failed", logx.Err(err))
	} else {
		log.Info("event action sent")
	}
	d.publish(ev)
}
