package cooldown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"twitchbot/internal/storage"
)

func TestScopeIndependence(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := New(Options{Clock: clk})

	if !tr.Start("chan::cmd", "alice", 30) {
		t.Fatalf("expected window to open")
	}
	if tr.Active("chan::cmd", "") {
		t.Fatalf("global scope must be inactive after a user start")
	}
	if !tr.Active("chan::cmd", "alice") {
		t.Fatalf("alice must be on cooldown")
	}
	if tr.Active("chan::cmd", "bob") {
		t.Fatalf("bob must not be on cooldown")
	}
}

func TestExpiryAndRearm(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := New(Options{Clock: clk})

	tr.Start("k", "", 10)
	clk.Advance(5 * time.Second)
	if tr.Start("k", "", 60) {
		t.Fatalf("re-arming an active window must be a no-op")
	}
	if got := tr.Remaining("k", ""); got != 5*time.Second {
		t.Fatalf("remaining=%v want 5s", got)
	}
	clk.Advance(5 * time.Second)
	if tr.Active("k", "") {
		t.Fatalf("window must close at expiry")
	}
	if tr.Remaining("k", "") != 0 {
		t.Fatalf("remaining must clamp at zero")
	}
	if !tr.Start("k", "", 60) {
		t.Fatalf("expected a new window after expiry")
	}
}

func TestZeroSecondsNeverActive(t *testing.T) {
	tr := New(Options{Clock: clockwork.NewFakeClock()})
	if tr.Start("k", "", 0) {
		t.Fatalf("zero-length window must not open")
	}
	if tr.Active("k", "") || tr.Active("missing", "x") {
		t.Fatalf("absent entries must be inactive")
	}
}

func TestPrune(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := New(Options{Clock: clk})
	tr.Start("a", "", 5)
	tr.Start("b", "", 50)
	clk.Advance(10 * time.Second)
	if n := tr.Prune(context.Background()); n != 1 {
		t.Fatalf("pruned %d want 1", n)
	}
	if tr.Len() != 1 || !tr.Active("b", "") {
		t.Fatalf("unexpected state after prune")
	}
}

type memPersister struct {
	mu   sync.Mutex
	puts []storage.Cooldown
	load []storage.Cooldown
	err  error
}

func (m *memPersister) PutCooldown(_ context.Context, c storage.Cooldown) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, c)
	return m.err
}

func (m *memPersister) LoadCooldowns(context.Context, time.Time) ([]storage.Cooldown, error) {
	return m.load, m.err
}

func (m *memPersister) PruneCooldowns(context.Context, time.Time) (int, error) { return 0, m.err }

func TestPersistAndRestore(t *testing.T) {
	clk := clockwork.NewFakeClock()
	p := &memPersister{}
	tr := New(Options{Clock: clk, Persister: p})
	tr.Start("chan::!hi", "alice", 30)
	if len(p.puts) != 1 || p.puts[0].User != "alice" || !p.puts[0].Until.Equal(clk.Now().Add(30*time.Second)) {
		t.Fatalf("unexpected puts: %+v", p.puts)
	}

	p.load = []storage.Cooldown{
		{Key: "chan::!so", Until: clk.Now().Add(time.Minute)},
		{Key: "chan::!gone", Until: clk.Now().Add(-time.Second)},
	}
	fresh := New(Options{Clock: clk, Persister: p})
	n, err := fresh.Restore(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("restore n=%d err=%v", n, err)
	}
	if !fresh.Active("chan::!so", "") || fresh.Active("chan::!gone", "") {
		t.Fatalf("restored state mismatch")
	}
}

func TestPersistFailureKeepsWindow(t *testing.T) {
	p := &memPersister{err: errors.New("disk full")}
	tr := New(Options{Clock: clockwork.NewFakeClock(), Persister: p})
	if !tr.Start("k", "", 10) || !tr.Active("k", "") {
		t.Fatalf("window must open even when persisting fails")
	}
}
