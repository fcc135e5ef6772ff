package auditlog

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/api-dispatcher/pkg/commsutil"
)

const commsSinkLogPrefix = "auditlog:comms_sink"

// CommsSinkOpts configures CommsSink. Nil or zero values use defaults.
type CommsSinkOpts struct {
	// SubjectPrefix overrides the audit subject prefix (records go to <prefix>.<clientCode>).
	SubjectPrefix string
}

// CommsSink publishes audit records to per-client COMMS subjects.
type CommsSink struct {
	nc            *comms.Conn
	subjectPrefix string
}

// NewCommsSink creates a new CommsSink. Pass nil for opts to use defaults.
func NewCommsSink(nc *comms.Conn, opts *CommsSinkOpts) *CommsSink {
	prefix := commsutil.SubjectAuditLog
	if opts != nil && opts.SubjectPrefix != "" {
		prefix = opts.SubjectPrefix
	}
	return &CommsSink{nc: nc, subjectPrefix: prefix}
}

// Add publishes record to the client's audit subject.
func (s *CommsSink) Add(_ context.Context, clientCode string, record *Record) error {
	data, err := commsutil.EncodePayload(record)
	if err != nil {
		return fmt.Errorf("%s - failed to encode record: %w", commsSinkLogPrefix, err)
	}

	subject := commsutil.BuildAuditLogSubject(s.subjectPrefix, clientCode)
	if err := s.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsSinkLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published record %s to %s", commsSinkLogPrefix, record.ID, subject))
	return nil
}
