package auditlog

import "context"

// Sink stores audit records for a client.
type Sink interface {
	Add(ctx context.Context, clientCode string, record *Record) error
}

// NoOpSink discards records.
type NoOpSink struct{}

// Add is a no-op.
func (s *NoOpSink) Add(_ context.Context, _ string, _ *Record) error {
	return nil
}

// CallbackSink calls a function for every record (for testing).
type CallbackSink struct {
	callback func(ctx context.Context, clientCode string, record *Record) error
}

// NewCallbackSink creates a new CallbackSink.
func NewCallbackSink(cb func(ctx context.Context, clientCode string, record *Record) error) *CallbackSink {
	return &CallbackSink{callback: cb}
}

// Add calls the callback.
func (s *CallbackSink) Add(ctx context.Context, clientCode string, record *Record) error {
	return s.callback(ctx, clientCode, record)
}
