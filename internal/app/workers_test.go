package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"twitchbot/internal/eventbus"
	rtsup "twitchbot/internal/runtime/supervisor"
	"twitchbot/internal/storage"
	kit "twitchbot/internal/transport"
	logx "twitchbot/pkg/logx"
)

func TestWorkersDrainQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := rtsup.New(ctx)

	in := make(chan kit.Event, 8)
	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 8)
	startWorkers(sup, 3, in, func(_ context.Context, ev kit.Event) {
		mu.Lock()
		seen[ev.Chat.Text] = true
		mu.Unlock()
		done <- struct{}{}
	})

	for _, text := range []string{"!a", "!b", "!c", "!d"} {
		in <- kit.Event{Kind: kit.EventChat, Chat: &kit.ChatEvent{Text: text}}
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", i)
		}
	}
	mu.Lock()
	if len(seen) != 4 {
		t.Fatalf("seen=%v", seen)
	}
	mu.Unlock()

	cancel()
	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer wcancel()
	if err := sup.Wait(wctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWorkerRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := rtsup.New(ctx)

	in := make(chan kit.Event, 2)
	handled := make(chan string, 2)
	startWorkers(sup, 1, in, func(_ context.Context, ev kit.Event) {
		if ev.Chat.Text == "boom" {
			panic("handler")
		}
		handled <- ev.Chat.Text
	})

	in <- kit.Event{Kind: kit.EventChat, Chat: &kit.ChatEvent{Text: "boom"}}
	in <- kit.Event{Kind: kit.EventChat, Chat: &kit.ChatEvent{Text: "ok"}}
	select {
	case got := <-handled:
		if got != "ok" {
			t.Fatalf("handled %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("worker did not restart")
	}
}

type auditStore struct {
	storage.Store
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (s *auditStore) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *auditStore) has(reqID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ReqID == reqID {
			return true
		}
	}
	return false
}

func (s *auditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestAuditKeepsSendOutcomesOnly(t *testing.T) {
	bus := eventbus.New()
	store := &auditStore{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runAudit(ctx, bus, store, logx.Nop())
	}()

	// wait for the subscription before publishing
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		eventbus.Emit(bus, eventbus.TopicDispatch, eventbus.DispatchEvent{ReqID: "warmup", Outcome: eventbus.OutcomeSent})
		if store.count() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if store.count() == 0 {
		t.Fatalf("audit never subscribed")
	}

	eventbus.Emit(bus, eventbus.TopicDispatch, eventbus.DispatchEvent{ReqID: "r1", Outcome: eventbus.OutcomeCooldown})
	eventbus.Emit(bus, eventbus.TopicDispatch, eventbus.DispatchEvent{ReqID: "r2", Outcome: eventbus.OutcomeUnauthorized})
	eventbus.Emit(bus, eventbus.TopicReload, eventbus.ReloadEvent{Channels: 1})
	eventbus.Emit(bus, eventbus.TopicDispatch, eventbus.DispatchEvent{ReqID: "r3", Channel: "streamer", Outcome: eventbus.OutcomeFailed, Error: "boom"})

	// events are delivered in order, so seeing r3 means r1 and r2 were handled
	deadline = time.Now().Add(2 * time.Second)
	for !store.has("r3") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	store.mu.Lock()
	defer store.mu.Unlock()
	var got *storage.AuditEntry
	for i := range store.entries {
		e := &store.entries[i]
		switch e.ReqID {
		case "r1", "r2":
			t.Fatalf("gated outcome persisted: %+v", e)
		case "r3":
			got = e
		}
	}
	if got == nil {
		t.Fatalf("failed dispatch not persisted")
	}
	if got.Outcome != eventbus.OutcomeFailed || got.Error != "boom" || got.Channel != "streamer" || got.At.IsZero() {
		t.Fatalf("unexpected entry: %+v", got)
	}
}
