package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/api-dispatcher/pkg/db"
)

const postgresStoreLogPrefix = "client:postgres_store"

// ClientReader reads active clients. *db.Repository implements it.
type ClientReader interface {
	GetActiveClientByField(ctx context.Context, field, value string) (*db.ActiveClient, error)
}

// PostgresStore reads active clients from the clients table.
type PostgresStore struct {
	reader ClientReader
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(reader ClientReader) *PostgresStore {
	return &PostgresStore{reader: reader}
}

// GetByField returns the client document: its data merged with id, code and status.
func (s *PostgresStore) GetByField(ctx context.Context, field, value string) (map[string]any, error) {
	row, err := s.reader.GetActiveClientByField(ctx, field, value)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", postgresStoreLogPrefix, err)
	}
	if row == nil {
		return nil, nil
	}

	doc := map[string]any{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &doc); err != nil {
			return nil, fmt.Errorf("%s - client %s has invalid data: %w", postgresStoreLogPrefix, row.Code, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	}
	doc["id"] = row.ID
	doc["code"] = row.Code
	doc["status"] = row.Status
	return doc, nil
}
