package template

import (
	"context"
	"errors"
	"testing"

	"twitchbot/internal/platform"
)

type fakeAPI struct {
	users    map[string]platform.User
	games    map[string]string
	chatters []platform.Chatter
	err      error
}

func (f *fakeAPI) UserByLogin(_ context.Context, login string) (platform.User, error) {
	if f.err != nil {
		return platform.User{}, f.err
	}
	u, ok := f.users[login]
	if !ok {
		return platform.User{}, platform.ErrNotFound
	}
	return u, nil
}

func (f *fakeAPI) ChannelInfo(_ context.Context, id string) (platform.Channel, error) {
	return platform.Channel{BroadcasterID: id, GameName: f.games[id]}, nil
}

func (f *fakeAPI) Chatters(context.Context, string) ([]platform.Chatter, error) {
	return f.chatters, f.err
}

func (f *fakeAPI) CreateClip(context.Context, string) (platform.Clip, error) {
	return platform.Clip{}, errors.New("not implemented")
}

func (f *fakeAPI) ClipByID(context.Context, string) (platform.Clip, error) {
	return platform.Clip{}, errors.New("not implemented")
}

func newRenderer(api platform.API, intN func(int) int) *Renderer {
	reg := NewRegistry()
	RegisterBuiltins(reg, BuiltinOptions{IntN: intN})
	return NewRenderer(Options{Registry: reg, API: api})
}

func first(int) int { return 0 }

func TestRenderIdentityAndVariables(t *testing.T) {
	r := newRenderer(nil, first)
	ctx := context.Background()

	cases := []struct {
		name string
		vars *Vars
		tpl  string
		want string
	}{
		{"plain", NewVars(), "plain text", "plain text"},
		{"repeated", NewVars().Set("a", "X"), "${a}-${a}", "X-X"},
		{"unknown left literal", NewVars(), "see ${clipUrl} now", "see ${clipUrl} now"},
		{"unterminated", NewVars().Set("a", "X"), "${a} and ${a", "X and ${a"},
		{"no recursion", NewVars().Set("a", "${b}").Set("b", "nope"), "${a}", "${b}"},
		{"value is not an action", NewVars().Set("1", "${random 1-2}"), "go ${1}", "go ${random 1-2}"},
		{"nested", NewVars().Set("y", "Y"), "${x ${y}}", "${x Y}"},
		{"empty", NewVars(), "${}", "${}"},
		{"positional", NewVars().Set("1", "bob").Set("touser", "bob"), "hi ${touser} (${1})", "hi bob (bob)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Render(ctx, tc.vars, nil, tc.tpl); got != tc.want {
				t.Fatalf("Render(%q)=%q want %q", tc.tpl, got, tc.want)
			}
		})
	}
}

func TestActionFailureIsIsolated(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg, BuiltinOptions{IntN: first})
	reg.Register("random", func(context.Context, platform.API, *EventContext, ...string) (string, error) {
		return "", errors.New("broken")
	})
	var failed []string
	r := NewRenderer(Options{Registry: reg, OnActionError: func(action string, _ error) { failed = append(failed, action) }})

	ev := &EventContext{SenderLogin: "aliceUser", MessageID: "m-1"}
	got := r.Render(context.Background(), NewVars(), ev, "${sender} rolled ${random 1-1}")
	if got != "aliceUser rolled *ERROR*" {
		t.Fatalf("got %q", got)
	}
	if len(failed) != 1 || failed[0] != "random" {
		t.Fatalf("expected one random failure, got %v", failed)
	}
}

func TestActionPanicBecomesMarker(t *testing.T) {
	reg := NewRegistry()
	reg.Register("boom", func(context.Context, platform.API, *EventContext, ...string) (string, error) {
		panic("kaboom")
	})
	r := NewRenderer(Options{Registry: reg})
	if got := r.Render(context.Background(), NewVars(), nil, "a ${boom} b"); got != "a *ERROR* b" {
		t.Fatalf("got %q", got)
	}
}

func TestBuiltins(t *testing.T) {
	api := &fakeAPI{
		users:    map[string]platform.User{"streamer": {ID: "7", Login: "streamer"}},
		games:    map[string]string{"7": "Celeste"},
		chatters: []platform.Chatter{{Login: "zed", Name: "Zed"}, {Login: "amy", Name: "Amy"}},
	}
	r := newRenderer(api, func(n int) int { return n - 1 })
	ev := &EventContext{MessageID: "abc-123", SenderLogin: "alice", BroadcasterID: "7"}
	ctx := context.Background()

	cases := []struct {
		tpl  string
		want string
	}{
		{"${channel @StreamER}", "streamer"},
		{"${game @Streamer}", "Celeste"},
		{"${game ghost}", "*ERROR*"},
		{"${channel}", "*ERROR*"},
		{"${random 1-10}", "9"},
		{"${random 5-5}", "5"},
		{"${random 9-3}", "9"},
		{"${random a-3}", "-1"},
		{"${random 5}", "-1"},
		{"${random}", "*ERROR*"},
		{"${random.viewer}", "amy"},
		{"${random.viwer}", "amy"},
		{"${msgid}", "abc-123"},
		{"${sender}", "alice"},
	}
	for _, tc := range cases {
		t.Run(tc.tpl, func(t *testing.T) {
			if got := r.Render(ctx, NewVars(), ev, tc.tpl); got != tc.want {
				t.Fatalf("Render(%q)=%q want %q", tc.tpl, got, tc.want)
			}
		})
	}
}

func TestRandomViewerFallsBackToName(t *testing.T) {
	api := &fakeAPI{chatters: []platform.Chatter{{Name: "Amy"}}}
	r := newRenderer(api, first)
	ev := &EventContext{MessageID: "m-1", BroadcasterID: "7"}
	if got := r.Render(context.Background(), NewVars(), ev, "${random.viewer}"); got != "Amy" {
		t.Fatalf("got %q", got)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg, BuiltinOptions{IntN: first})
	names := NewRenderer(Options{Registry: reg}).Registry().Names()
	want := []string{"channel", "game", "msgid", "random", "random.viewer", "random.viwer", "sender"}
	if len(names) != len(want) {
		t.Fatalf("names=%v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names=%v want %v", names, want)
		}
	}
}

func TestNestedActionArguments(t *testing.T) {
	api := &fakeAPI{
		users: map[string]platform.User{"streamer": {ID: "7", Login: "streamer"}},
		games: map[string]string{"7": "Celeste"},
	}
	r := newRenderer(api, first)
	ctx := context.Background()
	ev := &EventContext{SenderLogin: "streamer"}

	vars := NewVars().Set("1", "@Streamer")
	if got := r.Render(ctx, vars, ev, "${1} plays ${game ${1}}"); got != "@Streamer plays Celeste" {
		t.Fatalf("variable arg: got %q", got)
	}
	if got := r.Render(ctx, NewVars(), ev, "${game ${sender}}"); got != "Celeste" {
		t.Fatalf("action arg: got %q", got)
	}
	// a value holding a placeholder is text, not an argument
	vars = NewVars().Set("1", "${sender}")
	if got := r.Render(ctx, vars, ev, "${game ${1}}"); got != "${game ${sender}}" {
		t.Fatalf("injected: got %q", got)
	}
}

func TestMessageActionsWithoutSource(t *testing.T) {
	r := newRenderer(&fakeAPI{}, first)
	got := r.Render(context.Background(), NewVars(), nil, "${sender}|${msgid}|${random.viewer}")
	if got != "*ERROR*|*ERROR*|*ERROR*" {
		t.Fatalf("got %q", got)
	}
}

func TestRandomInRangeBounds(t *testing.T) {
	seen := map[string]bool{}
	for n := 0; n < 3; n++ {
		v := RandomInRange("10-13", func(k int) int {
			if k != 3 {
				t.Fatalf("IntN(%d), want 3", k)
			}
			return n
		})
		seen[v] = true
	}
	for _, want := range []string{"10", "11", "12"} {
		if !seen[want] {
			t.Fatalf("missing %s in %v", want, seen)
		}
	}
	if got := RandomInRange("-5-5", func(k int) int { return k - 1 }); got != "4" {
		t.Fatalf("negative lower bound: got %s", got)
	}
}

func TestVarsKeepInsertionOrder(t *testing.T) {
	v := NewVars().Set("b", "1").Set("a", "2").Set("b", "3")
	keys := v.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Fatalf("keys=%v", keys)
	}
	if s, _ := v.Get("b"); s != "3" {
		t.Fatalf("b=%q", s)
	}
}
