// Package cooldown tracks per-command rate-limit windows.
//
// A window is stored as an expiry timestamp; a scope is active while
// now < expiry. The global scope of a key and each user scope are
// independent windows.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"twitchbot/internal/storage"
	logx "twitchbot/pkg/logx"
)

// Persister receives every started window and replays open ones on boot.
// storage.Store satisfies it.
type Persister interface {
	PutCooldown(ctx context.Context, c storage.Cooldown) error
	LoadCooldowns(ctx context.Context, now time.Time) ([]storage.Cooldown, error)
	PruneCooldowns(ctx context.Context, now time.Time) (int, error)
}

type Options struct {
	Clock     clockwork.Clock
	Persister Persister
	Log       logx.Logger
}

type scope struct {
	key  string
	user string
}

type Tracker struct {
	clock clockwork.Clock
	store Persister
	log   logx.Logger

	mu      sync.Mutex
	windows map[scope]time.Time
}

func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Tracker{
		clock:   opts.Clock,
		store:   opts.Persister,
		log:     opts.Log,
		windows: map[scope]time.Time{},
	}
}

// Start opens a window of the given length for key (or for user under key when
// user is non-empty). It is a no-op while that scope is already active or when
// seconds <= 0. It reports whether a new window was opened.
func (t *Tracker) Start(key, user string, seconds int) bool {
	if seconds <= 0 || key == "" {
		return false
	}
	now := t.clock.Now()
	sc := scope{key: key, user: user}

	t.mu.Lock()
	if exp, ok := t.windows[sc]; ok && now.Before(exp) {
		t.mu.Unlock()
		return false
	}
	exp := now.Add(time.Duration(seconds) * time.Second)
	t.windows[sc] = exp
	t.mu.Unlock()

	if t.store != nil {
		// Write-through is best effort; the in-memory window is authoritative.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := t.store.PutCooldown(ctx, storage.Cooldown{Key: key, User: user, Until: exp})
		cancel()
		if err != nil {
			t.log.Warn("cooldown persist failed", logx.Key(key), logx.User(user), logx.Err(err))
		}
	}
	return true
}

// Active reports whether the scope is inside an open window.
// An empty user selects the global scope.
func (t *Tracker) Active(key, user string) bool {
	return t.Remaining(key, user) > 0
}

// Remaining returns the time left on the scope's window, or zero.
func (t *Tracker) Remaining(key, user string) time.Duration {
	now := t.clock.Now()
	t.mu.Lock()
	exp, ok := t.windows[scope{key: key, user: user}]
	t.mu.Unlock()
	if !ok || !now.Before(exp) {
		return 0
	}
	return exp.Sub(now)
}

// Prune drops closed windows from memory (and from the persister, best effort)
// and reports how many in-memory entries were removed.
func (t *Tracker) Prune(ctx context.Context) int {
	now := t.clock.Now()
	n := 0
	t.mu.Lock()
	for sc, exp := range t.windows {
		if !now.Before(exp) {
			delete(t.windows, sc)
			n++
		}
	}
	t.mu.Unlock()

	if t.store != nil {
		if _, err := t.store.PruneCooldowns(ctx, now); err != nil {
			t.log.Warn("cooldown store prune failed", logx.Err(err))
		}
	}
	return n
}

// Restore loads windows that are still open from the persister.
// Existing in-memory windows win when they close later.
func (t *Tracker) Restore(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}
	now := t.clock.Now()
	list, err := t.store.LoadCooldowns(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range list {
		if !now.Before(c.Until) {
			continue
		}
		sc := scope{key: c.Key, user: c.User}
		if cur, ok := t.windows[sc]; ok && !cur.Before(c.Until) {
			continue
		}
		t.windows[sc] = c.Until
		n++
	}
	return n, nil
}

// Len reports how many windows are tracked, open or not yet pruned.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}
