package audit

import "context"

type ctxKey int

const (
	ctxClientIP ctxKey = iota
	ctxActor
)

// WithClientIP stores the resolved client IP for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxClientIP, ip)
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ctxClientIP).(string); ok {
		return v
	}
	return ""
}

// WithActor stores the acting extension for audit records.
func WithActor(ctx context.Context, extension string) context.Context {
	return context.WithValue(ctx, ctxActor, extension)
}

func Actor(ctx context.Context) string {
	if v, ok := ctx.Value(ctxActor).(string); ok {
		return v
	}
	return ""
}
