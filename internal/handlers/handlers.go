// Package handlers holds the handlers the dispatcher ships with.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/db"
	"github.com/morezero/api-dispatcher/pkg/fetcher"
)

const logPrefix = "handlers:register"

// AuditReader reads stored audit records. *db.Repository implements it.
type AuditReader interface {
	GetAuditRecord(ctx context.Context, id string) (*db.AuditRecord, error)
	ListAuditRecords(ctx context.Context, clientCode string, limit int) ([]db.AuditRecord, error)
}

// ClientWriter stores clients. *db.Repository implements it.
type ClientWriter interface {
	GetActiveClientByField(ctx context.Context, field, value string) (*db.ActiveClient, error)
	UpsertClient(ctx context.Context, code, status string, data []byte) (*db.ActiveClient, error)
}

// ClientCache drops cached client lookups. *client.CachedStore implements it.
type ClientCache interface {
	Invalidate(ctx context.Context, field, value string) error
}

// Deps are the collaborators of the built-in handlers. Handlers whose
// collaborator is nil are not registered.
type Deps struct {
	ServiceName string
	Logs        AuditReader
	Clients     ClientWriter
	ClientCache ClientCache

	// ClientFields are the client fields active clients are looked up by.
	// Cached lookups under each are dropped when a client is written.
	ClientFields []string
}

// Register binds the built-in handlers to f.
func Register(f *fetcher.Fetcher, deps Deps) {
	f.Register("status", fetcher.VerbList, func() api.Handler {
		return &statusHandler{service: deps.ServiceName, now: time.Now}
	})
	f.Register("routes", fetcher.VerbList, func() api.Handler {
		return &routesHandler{fetcher: f}
	})

	if deps.Logs != nil {
		f.Register("logs", fetcher.VerbList, func() api.Handler {
			return &logsListHandler{reader: deps.Logs}
		})
		f.Register("logs", "get", func() api.Handler {
			return &logsGetHandler{reader: deps.Logs}
		})
	}
	if deps.Clients != nil {
		fields := lookupFields(deps.ClientFields)
		f.Register("clients", "post", func() api.Handler {
			return &clientsPostHandler{writer: deps.Clients, cache: deps.ClientCache, fields: fields}
		})
	}

	slog.Info(fmt.Sprintf("%s - Registered %d handlers", logPrefix, len(f.Routes())))
}
