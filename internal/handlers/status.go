package handlers

import (
	"context"
	"time"

	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/fetcher"
)

type statusHandler struct {
	service string
	now     func() time.Time
}

func (h *statusHandler) LogOptions() api.LogOptions {
	return api.LogOptions{CreateLog: api.Bool(false)}
}

func (h *statusHandler) Process(_ context.Context, call *api.Call) error {
	call.Response.SetBody(map[string]any{
		"status":    "ok",
		"service":   h.service,
		"logId":     call.Request.LogID,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
	return nil
}

type routesHandler struct {
	fetcher *fetcher.Fetcher
}

func (h *routesHandler) Process(_ context.Context, call *api.Call) error {
	call.Response.SetBody(map[string]any{
		"basePath": h.fetcher.BasePath(),
		"routes":   h.fetcher.Routes(),
	})
	return nil
}
