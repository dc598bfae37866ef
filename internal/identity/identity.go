// Package identity carries the authenticated user id through a request and
// mints the tokens the API accepts.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrNotAuthenticated is returned when no signed-in user is present
var ErrNotAuthenticated = errors.New("not authenticated")

// Resolver yields the uid of the current caller
type Resolver interface {
	UID(ctx context.Context) (string, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ctx context.Context) (string, error)

// UID calls f(ctx)
func (f ResolverFunc) UID(ctx context.Context) (string, error) {
	return f(ctx)
}

type contextKey struct{}

// WithUID returns a context carrying uid
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, contextKey{}, uid)
}

// FromContext returns the uid stored by WithUID
func FromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(contextKey{}).(string)
	if !ok || strings.TrimSpace(uid) == "" {
		return "", false
	}
	return uid, true
}

// ContextResolver resolves the uid placed on the request context by the
// authentication middleware.
type ContextResolver struct{}

// UID implements Resolver
func (ContextResolver) UID(ctx context.Context) (string, error) {
	uid, ok := FromContext(ctx)
	if !ok {
		return "", ErrNotAuthenticated
	}
	return uid, nil
}
