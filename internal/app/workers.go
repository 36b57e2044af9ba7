package app

import (
	"context"
	"fmt"
	"time"

	rtsup "twitchbot/internal/runtime/supervisor"
	kit "twitchbot/internal/transport"
)

// startWorkers drains in with n supervised workers. A worker that panics is
// restarted; the event that caused the panic is lost.
func startWorkers(sup *rtsup.Supervisor, n int, in <-chan kit.Event, handle func(context.Context, kit.Event)) {
	for i := 0; i < n; i++ {
		sup.GoRestart(fmt.Sprintf("dispatch.worker.%d", i), func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-in:
					if !ok {
						return nil
					}
					handle(ctx, ev)
				}
			}
		}, rtsup.WithRestartBackoff(100*time.Millisecond, 5*time.Second))
	}
}
