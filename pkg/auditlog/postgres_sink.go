package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/api-dispatcher/pkg/db"
)

const postgresSinkLogPrefix = "auditlog:postgres_sink"

// RecordStore persists audit records. *db.Repository implements it.
type RecordStore interface {
	InsertAuditRecord(ctx context.Context, rec db.AuditRecord) error
}

// PostgresSink writes audit records to the api_logs table.
type PostgresSink struct {
	store RecordStore
}

// NewPostgresSink creates a new PostgresSink.
func NewPostgresSink(store RecordStore) *PostgresSink {
	return &PostgresSink{store: store}
}

// Add inserts record for clientCode.
func (s *PostgresSink) Add(ctx context.Context, clientCode string, record *Record) error {
	logJSON, err := json.Marshal(record.Log)
	if err != nil {
		return fmt.Errorf("%s - failed to encode log entry: %w", postgresSinkLogPrefix, err)
	}

	row := db.AuditRecord{
		ID:         record.ID,
		ClientCode: clientCode,
		Entity:     record.Entity,
		EntityID:   record.EntityID,
		Type:       record.Type,
		Log:        logJSON,
	}
	if record.UserCreated != "" {
		user := record.UserCreated
		row.UserCreated = &user
	}

	if err := s.store.InsertAuditRecord(ctx, row); err != nil {
		return fmt.Errorf("%s - %w", postgresSinkLogPrefix, err)
	}
	return nil
}
