package log

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or Nop.
func FromContext(ctx context.Context) Logger {
	return FromContextOr(ctx, Nop())
}

// FromContextOr returns the Logger stored in ctx, or fallback when ctx
// carries none. Components built with their own logger use this so that
// request-scoped fields win when a request is in flight.
func FromContextOr(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
			return l
		}
	}
	if fallback == nil {
		return Nop()
	}
	return fallback
}

// Enrich adds kv to the logger in ctx and stores the result back.
func Enrich(ctx context.Context, kv ...any) (context.Context, Logger) {
	l := FromContext(ctx).With(kv...)
	return WithContext(ctx, l), l
}
