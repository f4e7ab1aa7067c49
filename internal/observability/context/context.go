// Package context carries request correlation values between the HTTP layer
// and loggers deeper in the call chain.
package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	eventIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithEventID tags the context with the Stripe event being processed.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

func EventIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(eventIDKey).(string)
	return v
}
