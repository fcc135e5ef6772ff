package dispatcher

import "context"

type logIDKey struct{}

// WithLogID returns a copy of ctx carrying the request log id.
func WithLogID(ctx context.Context, logID string) context.Context {
	return context.WithValue(ctx, logIDKey{}, logID)
}

// LogIDFromContext returns the log id of the dispatch ctx belongs to, or "".
func LogIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(logIDKey{}).(string)
	return id
}
