package template

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"twitchbot/internal/platform"
)

// BuiltinOptions tunes the built-in actions. IntN must return a value in [0,n).
type BuiltinOptions struct {
	IntN func(n int) int
}

// RegisterBuiltins binds channel, game, random, random.viewer, msgid and sender.
func RegisterBuiltins(r *Registry, opts BuiltinOptions) {
	intN := opts.IntN
	if intN == nil {
		intN = rand.Intn
	}

	r.Register("channel", func(_ context.Context, _ platform.API, _ *EventContext, args ...string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("channel: %w", ErrMissingArgument)
		}
		return NormalizeLogin(args[0]), nil
	})

	r.Register("game", func(ctx context.Context, api platform.API, _ *EventContext, args ...string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("game: %w", ErrMissingArgument)
		}
		if api == nil {
			return "", errors.New("game: platform api unavailable")
		}
		u, err := api.UserByLogin(ctx, NormalizeLogin(args[0]))
		if err != nil {
			return "", fmt.Errorf("game: %w", err)
		}
		ch, err := api.ChannelInfo(ctx, u.ID)
		if err != nil {
			return "", fmt.Errorf("game: %w", err)
		}
		return ch.GameName, nil
	})

	r.Register("random", func(_ context.Context, _ platform.API, _ *EventContext, args ...string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("random: %w", ErrMissingArgument)
		}
		return RandomInRange(args[0], intN), nil
	})

	viewer := func(ctx context.Context, api platform.API, ev *EventContext, _ ...string) (string, error) {
		if ev == nil || ev.BroadcasterID == "" {
			return "", fmt.Errorf("random.viewer: %w", ErrNoSourceMessage)
		}
		if api == nil {
			return "", errors.New("random.viewer: platform api unavailable")
		}
		list, err := api.Chatters(ctx, ev.BroadcasterID)
		if err != nil {
			return "", fmt.Errorf("random.viewer: %w", err)
		}
		if len(list) == 0 {
			return "", errors.New("random.viewer: no chatters")
		}
		c := list[intN(len(list))]
		if c.Login != "" {
			return c.Login, nil
		}
		return c.Name, nil
	}
	r.Register("random.viewer", viewer)
	// Older configs use this spelling.
	r.Register("random.viwer", viewer)

	r.Register("msgid", func(_ context.Context, _ platform.API, ev *EventContext, _ ...string) (string, error) {
		if ev == nil || ev.MessageID == "" {
			return "", fmt.Errorf("msgid: %w", ErrNoSourceMessage)
		}
		return ev.MessageID, nil
	})

	r.Register("sender", func(_ context.Context, _ platform.API, ev *EventContext, _ ...string) (string, error) {
		if ev == nil || ev.SenderLogin == "" {
			return "", fmt.Errorf("sender: %w", ErrNoSourceMessage)
		}
		return ev.SenderLogin, nil
	})
}

// NormalizeLogin strips one leading "@" and lowercases.
func NormalizeLogin(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

// RandomInRange picks an integer in [min,max) from "min-max".
// It returns "-1" when either bound is not an integer, and min when the range
// is empty (max <= min).
func RandomInRange(spec string, intN func(int) int) string {
	lo, hi, ok := strings.Cut(spec, "-")
	// Allow a negative lower bound ("-5-5").
	if lo == "" && ok {
		var rest string
		lo, rest, ok = strings.Cut(hi, "-")
		lo, hi = "-"+lo, rest
	}
	if !ok {
		return "-1"
	}
	min, err1 := strconv.Atoi(strings.TrimSpace(lo))
	max, err2 := strconv.Atoi(strings.TrimSpace(hi))
	if err1 != nil || err2 != nil {
		return "-1"
	}
	if max <= min {
		return strconv.Itoa(min)
	}
	return strconv.Itoa(min + intN(max-min))
}
