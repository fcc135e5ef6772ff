package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAuditLogs deletes stored audit records, all of them when clientCode is
// empty, otherwise only that client's. Clients and schema are kept. It returns
// the number of records removed; a full clear truncates and reports -1.
func ClearAuditLogs(ctx context.Context, pool *pgxpool.Pool, clientCode string) (int64, error) {
	if clientCode == "" {
		slog.Info(fmt.Sprintf("%s - Truncating api_logs", clearLogPrefix))
		if _, err := pool.Exec(ctx, `TRUNCATE TABLE api_logs`); err != nil {
			return 0, fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
		}
		return -1, nil
	}

	tag, err := pool.Exec(ctx, `DELETE FROM api_logs WHERE client_code = $1`, clientCode)
	if err != nil {
		return 0, fmt.Errorf("%s - delete for client %s failed: %w", clearLogPrefix, clientCode, err)
	}
	slog.Info(fmt.Sprintf("%s - Removed %d audit records of client %s", clearLogPrefix, tag.RowsAffected(), clientCode))
	return tag.RowsAffected(), nil
}
