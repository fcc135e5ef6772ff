package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/apierror"
	"github.com/morezero/api-dispatcher/pkg/schema"
)

const (
	defaultLogsLimit = 50
	maxLogsLimit     = 500
)

type logsQuery struct {
	Limit int `json:"limit" validate:"min=1,max=500"`
}

func (q *logsQuery) SetDefaults() {
	if q.Limit == 0 {
		q.Limit = defaultLogsLimit
	}
}

// errNoClient is returned when the session is not bound to a client.
var errNoClient = &apierror.Error{
	Code:       apierror.CodeValidationFailed,
	Message:    "Client code is required",
	StatusCode: http.StatusForbidden,
}

func clientCodeOf(call *api.Call) (string, error) {
	if call.Session == nil || call.Session.ClientCode() == "" {
		return "", errNoClient
	}
	return call.Session.ClientCode(), nil
}

// logsListHandler lists the latest audit records of the session's client.
type logsListHandler struct {
	reader AuditReader
}

func (h *logsListHandler) Struct() schema.Schema { return schema.Typed[logsQuery]() }

func (h *logsListHandler) Validate(_ context.Context, call *api.Call) error {
	_, err := clientCodeOf(call)
	return err
}

func (h *logsListHandler) LogOptions() api.LogOptions {
	return api.LogOptions{SkipResponseBody: true}
}

func (h *logsListHandler) Process(ctx context.Context, call *api.Call) error {
	code, err := clientCodeOf(call)
	if err != nil {
		return err
	}

	limit := defaultLogsLimit
	if n, ok := call.Request.Data["limit"].(float64); ok && n > 0 {
		limit = min(int(n), maxLogsLimit)
	}

	records, err := h.reader.ListAuditRecords(ctx, code, limit)
	if err != nil {
		return fmt.Errorf("list audit records: %w", err)
	}
	call.Response.SetBody(records)
	return nil
}

// logsGetHandler returns one audit record of the session's client.
type logsGetHandler struct {
	reader AuditReader
}

func (h *logsGetHandler) Validate(_ context.Context, call *api.Call) error {
	if call.PathParameter(0) == "" {
		return errors.New("Log id is required")
	}
	_, err := clientCodeOf(call)
	return err
}

func (h *logsGetHandler) Process(ctx context.Context, call *api.Call) error {
	code, err := clientCodeOf(call)
	if err != nil {
		return err
	}

	id := call.PathParameter(0)
	rec, err := h.reader.GetAuditRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("get audit record: %w", err)
	}
	if rec == nil || rec.ClientCode != code {
		return &apierror.Error{
			Code:             apierror.CodeProcessingFailed,
			Message:          "Log {{id}} not found",
			MessageVariables: map[string]any{"id": id},
			StatusCode:       http.StatusNotFound,
		}
	}
	call.Response.SetBody(rec)
	return nil
}
