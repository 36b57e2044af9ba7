package template

import (
	"context"
	"fmt"
	"strings"

	"twitchbot/internal/platform"
	logx "twitchbot/pkg/logx"
)

type Options struct {
	Registry *Registry
	API      platform.API
	Log      logx.Logger
	// OnActionError is called once per failed action placeholder.
	OnActionError func(action string, err error)
}

type Renderer struct {
	reg     *Registry
	api     platform.API
	log     logx.Logger
	onError func(action string, err error)
}

func NewRenderer(opts Options) *Renderer {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Renderer{reg: opts.Registry, api: opts.API, log: opts.Log, onError: opts.OnActionError}
}

func (r *Renderer) Registry() *Registry { return r.reg }

// Render substitutes every placeholder of tpl in template order. Variables
// win over actions of the same name. A placeholder whose body holds another
// placeholder ("${game ${1}}") has its body rendered first; substituted text
// is never rescanned, so a value cannot smuggle in an action call. A failing
// handler yields ErrorMarker for its own placeholder only.
func (r *Renderer) Render(ctx context.Context, vars *Vars, ev *EventContext, tpl string) string {
	if !strings.Contains(tpl, "${") {
		return tpl
	}
	var b strings.Builder
	b.Grow(len(tpl))

	rest := tpl
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		body, n, ok := placeholder(rest[i+2:])
		if !ok {
			// Unterminated; keep "${" and rescan so inner placeholders still resolve.
			b.WriteString("${")
			rest = rest[i+2:]
			continue
		}
		rest = rest[i+2+n:]
		if strings.Contains(body, "${") {
			body = r.Render(ctx, vars, ev, body)
		}
		if v, ok := vars.Get(body); ok {
			b.WriteString(v)
		} else if out, ok := r.call(ctx, ev, body); ok {
			b.WriteString(out)
		} else {
			b.WriteString("${" + body + "}")
		}
	}
	return b.String()
}

// placeholder returns the body of a placeholder whose "${" was just consumed
// and the number of bytes it spans including the closing brace.
func placeholder(s string) (body string, n int, ok bool) {
	depth := 0
	for k := 0; k < len(s); k++ {
		switch {
		case s[k] == '$' && k+1 < len(s) && s[k+1] == '{':
			depth++
			k++
		case s[k] == '}':
			if depth == 0 {
				return s[:k], k + 1, true
			}
			depth--
		}
	}
	return "", 0, false
}

func (r *Renderer) call(ctx context.Context, ev *EventContext, inner string) (string, bool) {
	name, args, ok := parseCall(inner)
	if !ok {
		return "", false
	}
	h, ok := r.reg.Lookup(name)
	if !ok {
		return "", false
	}
	out, err := r.invoke(ctx, h, ev, args)
	if err != nil {
		r.log.Warn("template action failed", logx.String("action", name), logx.Err(err))
		if r.onError != nil {
			r.onError(name, err)
		}
		return ErrorMarker, true
	}
	return out, true
}

func (r *Renderer) invoke(ctx context.Context, h Handler, ev *EventContext, args []string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action panic: %v", rec)
		}
	}()
	return h(ctx, r.api, ev, args...)
}

// parseCall splits "name arg1 arg2" into its parts. Names and args are limited
// to letters, digits and "_@.-"; arguments are separated by single spaces.
func parseCall(inner string) (string, []string, bool) {
	if inner == "" || inner[0] == ' ' {
		return "", nil, false
	}
	for i := 0; i < len(inner); i++ {
		if c := inner[i]; c != ' ' && !isArgChar(c) {
			return "", nil, false
		}
	}
	parts := strings.Split(inner, " ")
	args := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			args = append(args, p)
		}
	}
	return parts[0], args, true
}

func isArgChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '@', c == '.', c == '-':
		return true
	}
	return false
}
