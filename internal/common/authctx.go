package common

import "context"

type contextKey int

const ownerIDKey contextKey = iota

// WithUserID returns a context carrying the authenticated passport owner.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}

// UserID reports the authenticated passport owner, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerIDKey).(string)
	if id == "" {
		return "", false
	}
	return id, ok
}
