// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext describes the actor on whose behalf changes are saved.
type UserContext struct {
	UserID    string
	Email     string
	SessionID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// WithUserID is a shorthand for WithUser when only the identifier is known.
func WithUserID(ctx context.Context, userID string) context.Context {
	return WithUser(ctx, &UserContext{UserID: userID})
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// ActingUser resolves the audit actor: an explicit identifier wins over the
// one carried by ctx. Returns nil when neither is set.
func ActingUser(ctx context.Context, explicit *string) *string {
	if explicit != nil && *explicit != "" {
		v := *explicit
		return &v
	}
	if id := GetUserID(ctx); id != "" {
		return &id
	}
	return nil
}
