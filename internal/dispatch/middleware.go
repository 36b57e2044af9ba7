package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"twitchbot/internal/eventbus"
	"twitchbot/internal/model"
	kit "twitchbot/internal/transport"
	logx "twitchbot/pkg/logx"
)

// Request is one authorized command invocation.
type Request struct {
	ReqID   string
	Key     string
	Channel *model.ChannelConfig
	Command *model.CommandDef
	Chat    *kit.ChatEvent
	Params  []string
	Logger  logx.Logger
}

type Handler func(ctx context.Context, req *Request) error

type Middleware func(next Handler) Handler

func Chain(h Handler, m ...Middleware) Handler {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// Recover converts a panic in next into an error.
func Recover() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// RequestLog logs the outcome of next and publishes it on bus.
func RequestLog(bus eventbus.Bus) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			ev := eventbus.DispatchEvent{
				ReqID:   req.ReqID,
				Kind:    string(kit.EventChat),
				Channel: req.Channel.Name,
				Command: req.Command.Command,
				User:    req.Chat.User.Login,
				Outcome: eventbus.OutcomeSent,
				TookMS:  d.Milliseconds(),
			}
			if err != nil {
				ev.Outcome = eventbus.OutcomeFailed
				ev.Error = err.Error()
				req.Logger.Error("command failed", logx.Err(err), logx.Duration("dur", d))
			} else {
				req.Logger.Debug("command succeeded", logx.Duration("dur", d))
			}
			eventbus.Emit(bus, eventbus.TopicDispatch, ev)
			return err
		}
	}
}
