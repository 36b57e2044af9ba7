package app

import (
	"context"
	"time"

	"twitchbot/internal/eventbus"
	"twitchbot/internal/storage"
	logx "twitchbot/pkg/logx"
)

// runAudit persists dispatch outcomes that reached the send stage.
// Gated outcomes (cooldown, unauthorized) are too chatty to keep.
func runAudit(ctx context.Context, bus eventbus.Bus, store storage.Store, log logx.Logger) {
	events, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev, ok := e.Data.(eventbus.DispatchEvent)
			if !ok || (ev.Outcome != eventbus.OutcomeSent && ev.Outcome != eventbus.OutcomeFailed) {
				continue
			}
			at := e.Time
			if at.IsZero() {
				at = time.Now()
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := store.AppendAudit(wctx, storage.AuditEntry{
				At:      at,
				ReqID:   ev.ReqID,
				Channel: ev.Channel,
				Command: ev.Command,
				User:    ev.User,
				Outcome: ev.Outcome,
				Error:   ev.Error,
				TookMS:  ev.TookMS,
			})
			cancel()
			if err != nil {
				log.Warn("audit write failed", logx.String("req_id", ev.ReqID), logx.Err(err))
			}
		}
	}
}
