package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/api-dispatcher/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// EndedSubject overrides the global ended event subject.
	EndedSubject string
}

// CommsPublisher publishes dispatch events to COMMS subjects.
type CommsPublisher struct {
	nc           *comms.Conn
	endedSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectDispatchEnded
	if opts != nil && opts.EndedSubject != "" {
		subject = opts.EndedSubject
	}
	return &CommsPublisher{nc: nc, endedSubject: subject}
}

// PublishEnded publishes a DispatchEndedEvent to both the per-entity
// and global ended subjects.
func (p *CommsPublisher) PublishEnded(_ context.Context, event *DispatchEndedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	// Publish to entity subject
	entitySubject := commsutil.BuildDispatchEndedSubject(event.Entity())
	if entitySubject != p.endedSubject {
		if err := p.nc.Publish(entitySubject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, entitySubject, err))
			return err
		}
	}

	// Publish to global subject
	if err := p.nc.Publish(p.endedSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.endedSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published ended event for %s %s", commsPublisherLogPrefix, event.Method, event.Endpoint))
	return nil
}
