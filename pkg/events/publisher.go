package events

import "context"

// EventPublisher is the interface for publishing dispatch events.
type EventPublisher interface {
	PublishEnded(ctx context.Context, event *DispatchEndedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishEnded is a no-op.
func (p *NoOpPublisher) PublishEnded(_ context.Context, _ *DispatchEndedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *DispatchEndedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *DispatchEndedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishEnded calls the callback.
func (p *CallbackPublisher) PublishEnded(ctx context.Context, event *DispatchEndedEvent) error {
	return p.callback(ctx, event)
}
