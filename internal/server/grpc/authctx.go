package grpcserver

import "context"

type ctxKey string

const callerKey ctxKey = "sg.caller"

// Caller is the authenticated admin identity.
type Caller struct {
	Subject string
	Channel string
}

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromCtx fetches the caller from context.
func CallerFromCtx(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}
