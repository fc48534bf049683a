// Package ctxutil carries request-scoped values set by the HTTP middleware.
package ctxutil

import "context"

type ctxKey int

const (
	traceKey ctxKey = iota
	principalKey
)

// TraceData correlates a request across logs and spans.
type TraceData struct {
	TraceID   string
	RequestID string
}

// Principal is the authenticated caller. The plan pipeline never reads it;
// it only travels with the request for logging.
type Principal struct {
	Subject string
	Email   string
	Issuer  string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceKey, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	return value[*TraceData](ctx, traceKey)
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(ctx context.Context) *Principal {
	return value[*Principal](ctx, principalKey)
}

func value[T any](ctx context.Context, key ctxKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}
