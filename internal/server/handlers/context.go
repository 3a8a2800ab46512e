package handlers

import "context"

type contextKey string

// UsernameKey is the request context key holding the authenticated username
const UsernameKey contextKey = "username"

// WithUsername returns ctx carrying username
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, UsernameKey, username)
}

// GetUsername извлекает username из контекста запроса
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok && username != ""
}
