package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "twitchbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("expected disabled store, got %v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestCooldownRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.db")
			cfg := Config{Driver: driver, Path: path, BusyTimeout: time.Second}
			ctx := context.Background()
			now := time.Now()

			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			must := func(err error) {
				t.Helper()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			must(st.PutCooldown(ctx, Cooldown{Key: "chan::!hi", Until: now.Add(time.Minute)}))
			must(st.PutCooldown(ctx, Cooldown{Key: "chan::!hi", User: "alice", Until: now.Add(time.Minute)}))
			must(st.PutCooldown(ctx, Cooldown{Key: "chan::!old", Until: now.Add(-time.Minute)}))
			must(st.AppendAudit(ctx, AuditEntry{Channel: "chan", Command: "!hi", User: "alice", Outcome: "sent"}))
			must(st.Close())

			st, err = Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()

			got, err := st.LoadCooldowns(ctx, now)
			must(err)
			if len(got) != 2 {
				t.Fatalf("expected 2 open cooldowns, got %+v", got)
			}
			for _, c := range got {
				if c.Key != "chan::!hi" {
					t.Fatalf("unexpected cooldown %+v", c)
				}
			}

			n, err := st.PruneCooldowns(ctx, now.Add(2*time.Minute))
			must(err)
			if driver == "sqlite" && n != 3 {
				t.Fatalf("sqlite pruned %d, want 3", n)
			}
			got, err = st.LoadCooldowns(ctx, now)
			must(err)
			if len(got) != 0 {
				t.Fatalf("expected empty after prune, got %+v", got)
			}
		})
	}
}
