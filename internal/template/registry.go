// Package template renders chat response templates.
//
// Two placeholder forms are recognised:
//
//	${name}              variable lookup
//	${action arg1 arg2}  registered action handler
//
// Placeholders are resolved in a single left-to-right pass. Text produced by
// a substitution is never scanned again, so values that themselves contain
// "${...}" are emitted verbatim. Placeholders that match neither a variable
// nor a valid action call are left untouched.
package template

import (
	"context"
	"errors"
	"sort"
	"sync"

	"twitchbot/internal/platform"
)

// ErrorMarker replaces an action placeholder whose handler failed.
const ErrorMarker = "*ERROR*"

var (
	ErrNoSourceMessage = errors.New("template: no source message")
	ErrMissingArgument = errors.New("template: missing argument")
)

// EventContext carries the parts of the triggering event the actions may read.
// It is nil for events that have no source chat message.
type EventContext struct {
	MessageID       string
	SenderLogin     string
	BroadcasterID   string
	BroadcasterName string
}

// Handler computes the replacement for one action placeholder.
type Handler func(ctx context.Context, api platform.API, ev *EventContext, args ...string) (string, error)

// Registry maps action names to handlers. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Handler
}

func NewRegistry() *Registry { return &Registry{m: map[string]Handler{}} }

// Register binds name to h, replacing any previous binding.
func (r *Registry) Register(name string, h Handler) {
	if name == "" || h == nil {
		return
	}
	r.mu.Lock()
	r.m[name] = h
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.m[name]
	r.mu.RUnlock()
	return h, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Vars is an ordered string map of template variables.
type Vars struct {
	keys []string
	m    map[string]string
}

func NewVars() *Vars { return &Vars{m: map[string]string{}} }

// Set adds or replaces key. Replacing keeps the original position.
func (v *Vars) Set(key, value string) *Vars {
	if v.m == nil {
		v.m = map[string]string{}
	}
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = value
	return v
}

func (v *Vars) Get(key string) (string, bool) {
	if v == nil || v.m == nil {
		return "", false
	}
	s, ok := v.m[key]
	return s, ok
}

func (v *Vars) Keys() []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v.keys...)
}

func (v *Vars) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}
