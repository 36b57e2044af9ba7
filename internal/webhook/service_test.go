package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"twitchbot/internal/eventbus"
	logx "twitchbot/pkg/logx"
)

func fastConfig() Config {
	return Config{
		Workers:       1,
		QueueSize:     4,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		Username:      "ClipBot",
		AvatarURL:     "https://example.test/a.png",
	}
}

func TestPostFillsDefaults(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type=%q", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := New(fastConfig(), srv.Client(), logx.Nop(), nil)
	err := s.Post(context.Background(), srv.URL, Message{
		Content: "new clip",
		Embeds:  []Embed{{Title: "t", Author: &EmbedAuthor{Name: "Twitch"}}},
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got.Username != "ClipBot" || got.AvatarURL == "" || got.Content != "new clip" {
		t.Fatalf("unexpected body %+v", got)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Author == nil || got.Embeds[0].Author.Name != "Twitch" {
		t.Fatalf("unexpected embeds %+v", got.Embeds)
	}
}

func TestPostStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1.5")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := New(fastConfig(), srv.Client(), logx.Nop(), nil)
	err := s.Post(context.Background(), srv.URL, Message{Content: "x"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !se.Temporary() || se.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("unexpected status error %+v", se)
	}
	if err := s.Post(context.Background(), "", Message{}); !errors.Is(err, ErrNoURL) {
		t.Fatalf("expected ErrNoURL, got %v", err)
	}
}

func waitOutcome(t *testing.T, ch <-chan eventbus.Event, want string) eventbus.WebhookEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			we, ok := ev.Data.(eventbus.WebhookEvent)
			if ok && we.Outcome == want {
				return we
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(fastConfig(), srv.Client(), logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), "chan::!clip", srv.URL, Message{Content: "x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	we := waitOutcome(t, events, eventbus.WebhookSent)
	if we.Attempts != 3 || we.Key != "chan::!clip" {
		t.Fatalf("unexpected outcome %+v", we)
	}
}

func TestNotifyDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(fastConfig(), srv.Client(), logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), "k", srv.URL, Message{Content: "x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	we := waitOutcome(t, events, eventbus.WebhookFailed)
	if we.Attempts != 1 || calls.Load() != 1 {
		t.Fatalf("attempts=%d calls=%d", we.Attempts, calls.Load())
	}
}

func TestNotifyAfterStop(t *testing.T) {
	s := New(fastConfig(), nil, logx.Nop(), nil)
	if err := s.Notify(context.Background(), "k", "http://x", Message{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped before Start, got %v", err)
	}
	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	if err := s.Notify(context.Background(), "k", "http://x", Message{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d delay %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %v outside jitter window", d)
	}
}
