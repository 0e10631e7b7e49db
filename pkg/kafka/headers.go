package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

type ctxKey struct{}

// WithHeaders stores message headers in the context handed to handlers.
func WithHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Key] = string(h.Value)
	}
	return context.WithValue(ctx, ctxKey{}, m)
}

// HeaderFromContext returns a header of the message being handled, or "".
func HeaderFromContext(ctx context.Context, key string) string {
	m, _ := ctx.Value(ctxKey{}).(map[string]string)
	return m[key]
}

func toHeaders(m map[string]string) []kafka.Header {
	if len(m) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
