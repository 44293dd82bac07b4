// Package auth carries the acting user and the capabilities granted to it
// through a context.
package auth

import "context"

type contextKey struct {
	name string
}

var authKey = &contextKey{"user"}

type principal struct {
	user         string
	capabilities map[string]bool
}

func WithContextUser(ctx context.Context, user string, capabilities ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	p := principal{user: user, capabilities: make(map[string]bool, len(capabilities))}
	for _, capability := range capabilities {
		p.capabilities[capability] = true
	}
	return context.WithValue(ctx, authKey, p)
}

func ContextUser(ctx context.Context) string {
	if ctx != nil {
		if p, ok := ctx.Value(authKey).(principal); ok {
			return p.user
		}
	}
	return ""
}

// ContextChecker grants the capabilities attached to the context user.
type ContextChecker struct{}

func (ContextChecker) Can(ctx context.Context, capability string) bool {
	if ctx == nil {
		return false
	}
	p, ok := ctx.Value(authKey).(principal)
	return ok && p.capabilities[capability]
}
