package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// clientFieldName restricts lookup fields to plain JSON keys.
var clientFieldName = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Repository provides database access for audit records and active clients.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// =========================================================================
// AUDIT RECORDS
// =========================================================================

// InsertAuditRecord stores an audit record. Inserting the same id twice is a no-op.
func (r *Repository) InsertAuditRecord(ctx context.Context, rec AuditRecord) error {
	slog.Debug(fmt.Sprintf("%s - InsertAuditRecord id=%s client=%s", repoLogPrefix, rec.ID, rec.ClientCode))

	created := rec.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_logs (id, client_code, entity, entity_id, type, user_created, log, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.ClientCode, rec.Entity, rec.EntityID, rec.Type, rec.UserCreated, rec.Log, created)
	if err != nil {
		return fmt.Errorf("%s - failed to insert audit record: %w", repoLogPrefix, err)
	}
	return nil
}

// GetAuditRecord finds an audit record by id.
func (r *Repository) GetAuditRecord(ctx context.Context, id string) (*AuditRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, client_code, entity, entity_id, type, user_created, log, created
		 FROM api_logs
		 WHERE id = $1`, id)

	var rec AuditRecord
	err := row.Scan(&rec.ID, &rec.ClientCode, &rec.Entity, &rec.EntityID, &rec.Type, &rec.UserCreated, &rec.Log, &rec.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get audit record: %w", repoLogPrefix, err)
	}
	return &rec, nil
}

// ListAuditRecords returns the newest records of a client.
func (r *Repository) ListAuditRecords(ctx context.Context, clientCode string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, client_code, entity, entity_id, type, user_created, log, created
		 FROM api_logs
		 WHERE client_code = $1
		 ORDER BY created DESC
		 LIMIT $2`, clientCode, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list audit records: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.ClientCode, &rec.Entity, &rec.EntityID, &rec.Type, &rec.UserCreated, &rec.Log, &rec.Created); err != nil {
			return nil, fmt.Errorf("%s - failed to scan audit record: %w", repoLogPrefix, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =========================================================================
// ACTIVE CLIENTS
// =========================================================================

// GetActiveClientByField finds an active client whose field equals value. The
// field "code" matches the code column; any other field matches a top-level
// key of the client data.
func (r *Repository) GetActiveClientByField(ctx context.Context, field, value string) (*ActiveClient, error) {
	slog.Debug(fmt.Sprintf("%s - GetActiveClientByField field=%s", repoLogPrefix, field))

	if !clientFieldName.MatchString(field) {
		return nil, fmt.Errorf("%s - invalid client field %q", repoLogPrefix, field)
	}

	var row pgx.Row
	if field == "code" {
		row = r.pool.QueryRow(ctx,
			`SELECT id::text, code, status, data, modified
			 FROM clients
			 WHERE code = $1 AND status = $2
			 LIMIT 1`, value, ClientStatusActive)
	} else {
		row = r.pool.QueryRow(ctx,
			`SELECT id::text, code, status, data, modified
			 FROM clients
			 WHERE data->>$1 = $2 AND status = $3
			 LIMIT 1`, field, value, ClientStatusActive)
	}

	var c ActiveClient
	err := row.Scan(&c.ID, &c.Code, &c.Status, &c.Data, &c.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get client: %w", repoLogPrefix, err)
	}
	return &c, nil
}

// UpsertClient creates or updates a client by code.
func (r *Repository) UpsertClient(ctx context.Context, code, status string, data []byte) (*ActiveClient, error) {
	slog.Info(fmt.Sprintf("%s - UpsertClient code=%s", repoLogPrefix, code))

	row := r.pool.QueryRow(ctx,
		`INSERT INTO clients (code, status, data, modified)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (code) DO UPDATE SET
		   status = $2,
		   data = $3,
		   modified = $4
		 RETURNING id::text, code, status, data, modified`,
		code, status, data, time.Now().UTC())

	var c ActiveClient
	if err := row.Scan(&c.ID, &c.Code, &c.Status, &c.Data, &c.Modified); err != nil {
		return nil, fmt.Errorf("%s - failed to upsert client: %w", repoLogPrefix, err)
	}
	return &c, nil
}
