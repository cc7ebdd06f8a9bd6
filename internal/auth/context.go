package auth

import (
	"context"
	"time"
)

// Identity is what the gate learned about a caller.
type Identity struct {
	Kind      Kind      `json:"kind"`
	Extension string    `json:"extension,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// token is the stored credential key; empty for password callers.
	token string
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Extension returns the caller's extension, or "" when none is attached.
func Extension(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.Extension
}

// Key identifies the credential behind id without exposing it, for per-caller
// limits. Every password-header caller shares one key.
func (id Identity) Key() string {
	if id.token == "" {
		return string(id.Kind)
	}
	return tokenDigest(id.token)[:16]
}
