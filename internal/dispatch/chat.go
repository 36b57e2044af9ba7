package dispatch

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"twitchbot/internal/eventbus"
	"twitchbot/internal/model"
	"twitchbot/internal/template"
	kit "twitchbot/internal/transport"
	logx "twitchbot/pkg/logx"
)

// HandleChat runs the command state machine for one chat message.
func (d *Dispatcher) HandleChat(ctx context.Context, ev *kit.ChatEvent) {
	if ev == nil {
		return
	}
	ch, ok := d.channel(ev.Broadcaster.Login)
	if !ok {
		return
	}

	tokens := strings.Split(strings.TrimSpace(ev.Text), " ")
	name := tokens[0]
	if !strings.HasPrefix(name, d.Prefix()) {
		return
	}
	cmd, ok := ch.FindCommand(name)
	if !ok {
		return
	}

	key := model.DispatchKey(ch.Name, cmd.Command)
	req := &Request{
		ReqID:   d.newID(),
		Key:     key,
		Channel: ch,
		Command: cmd,
		Chat:    ev,
		Params:  tokens[1:],
	}
	req.Logger = d.log.With(logx.String("req_id", req.ReqID), logx.Key(key), logx.User(ev.User.Login))
	req.Logger.Info("command called")

	if outcome, ok := d.gate(req); !ok {
		d.publish(eventbus.DispatchEvent{
			ReqID:   req.ReqID,
			Kind:    string(kit.EventChat),
			Channel: ch.Name,
			Command: cmd.Command,
			User:    ev.User.Login,
			Outcome: outcome,
		})
		return
	}

	defer d.startCooldown(req)
	// The outcome is logged and published by RequestLog.
	d.chat(ctx, req)
}

// gate applies the permission check, then the user and global cooldowns.
// Global cooldown is checked for every scope.
func (d *Dispatcher) gate(req *Request) (string, bool) {
	cmd, user := req.Command, req.Chat.User.Login
	if !req.Chat.Level.AtLeast(cmd.UserLevel) {
		req.Logger.Debug("command unauthorized",
			logx.String("level", req.Chat.Level.String()),
			logx.String("required", cmd.UserLevel.String()))
		return eventbus.OutcomeUnauthorized, false
	}
	if cmd.CooldownType == model.ScopeUser && d.cd.Active(req.Key, user) {
		req.Logger.Debug("command awaiting user cooldown", logx.Duration("remaining", d.cd.Remaining(req.Key, user)))
		return eventbus.OutcomeCooldown, false
	}
	if d.cd.Active(req.Key, "") {
		req.Logger.Debug("command awaiting global cooldown", logx.Duration("remaining", d.cd.Remaining(req.Key, "")))
		return eventbus.OutcomeCooldown, false
	}
	return "", true
}

func (d *Dispatcher) startCooldown(req *Request) {
	user := ""
	if req.Command.CooldownType == model.ScopeUser {
		user = req.Chat.User.Login
	}
	d.cd.Start(req.Key, user, req.Command.CooldownSeconds())
}

func (d *Dispatcher) runCommand(ctx context.Context, req *Request) error {
	ev, cmd := req.Chat, req.Command

	vars := commandVars(req)
	out := d.renderer.Render(ctx, vars, eventContext(ev), cmd.Message)

	if cmd.IsClip() {
		var err error
		if out, err = d.runClip(ctx, req, out); err != nil {
			return err
		}
	}

	if strings.TrimSpace(out) == "" {
		req.Logger.Debug("empty response skipped")
		return nil
	}
	if ev.Out == nil {
		return errors.New("event has no outbound sender")
	}
	if cmd.ReplyMode() == model.ModeReply {
		return ev.Out.Reply(ctx, ev.MessageID, out)
	}
	return ev.Out.Say(ctx, out)
}

// commandVars builds the variables of a chat command: 1-based positional
// parameters, touser (first parameter), broadcasterName, userName and
// userDisplayName.
func commandVars(req *Request) *template.Vars {
	ev := req.Chat
	vars := template.NewVars()
	for i, p := range req.Params {
		vars.Set(strconv.Itoa(i+1), p)
	}
	touser := ""
	if len(req.Params) > 0 {
		touser = req.Params[0]
	}
	vars.Set("touser", touser)
	vars.Set("broadcasterName", req.Channel.Name)
	vars.Set("userName", ev.User.Login)
	vars.Set("userDisplayName", ev.User.DisplayName)
	return vars
}

func eventContext(ev *kit.ChatEvent) *template.EventContext {
	return &template.EventContext{
		MessageID:       ev.MessageID,
		SenderLogin:     ev.User.Login,
		BroadcasterID:   ev.Broadcaster.ID,
		BroadcasterName: ev.Broadcaster.Login,
	}
}
