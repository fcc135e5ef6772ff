package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/apierror"
	"github.com/morezero/api-dispatcher/pkg/db"
	"github.com/morezero/api-dispatcher/pkg/schema"
)

const clientsLogPrefix = "handlers:clients"

var clientCodePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

var objectRule = validation.By(func(value interface{}) error {
	if value == nil {
		return nil
	}
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("must be an object")
	}
	return nil
})

// clientsPostHandler creates or updates a client.
type clientsPostHandler struct {
	writer ClientWriter
	cache  ClientCache
	fields []string
}

func (h *clientsPostHandler) Struct() schema.Schema {
	return schema.Object(
		schema.Key("code", validation.Required, schema.String, validation.Length(1, 100)),
		schema.Key("status", schema.String, validation.In(db.ClientStatusActive, db.ClientStatusInactive)).Default(db.ClientStatusActive),
		schema.Key("data", objectRule).Optional(),
	)
}

func (h *clientsPostHandler) Validate(_ context.Context, call *api.Call) error {
	code, _ := call.Request.Data["code"].(string)
	if !clientCodePattern.MatchString(code) {
		return apierror.Variablesf("Invalid client code {{code}}", map[string]any{"code": code})
	}
	return nil
}

func (h *clientsPostHandler) LogOptions() api.LogOptions {
	return api.LogOptions{ExcludeRequestDataFields: []string{"secret", "password"}}
}

func (h *clientsPostHandler) Process(ctx context.Context, call *api.Call) error {
	code, _ := call.Request.Data["code"].(string)
	status, _ := call.Request.Data["status"].(string)

	data := []byte("{}")
	if d, ok := call.Request.Data["data"].(map[string]any); ok {
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode client data: %w", err)
		}
		data = raw
	}

	var previous *db.ActiveClient
	if h.cache != nil {
		var err error
		if previous, err = h.writer.GetActiveClientByField(ctx, "code", code); err != nil {
			slog.Warn(fmt.Sprintf("%s - read client %s before update: %v", clientsLogPrefix, code, err))
		}
	}

	c, err := h.writer.UpsertClient(ctx, code, status, data)
	if err != nil {
		return fmt.Errorf("upsert client %s: %w", code, err)
	}

	if h.cache != nil {
		h.invalidate(ctx, previous, c)
	}

	call.Response.SetCode(http.StatusCreated).SetBody(c)
	return nil
}

// invalidate drops the cached lookups of the given client versions under every
// lookup field, so lookups by an old value miss as well as by the new one.
func (h *clientsPostHandler) invalidate(ctx context.Context, versions ...*db.ActiveClient) {
	done := map[string]bool{}
	for _, field := range h.fields {
		for _, c := range versions {
			value, ok := clientFieldValue(c, field)
			if !ok || done[field+"="+value] {
				continue
			}
			done[field+"="+value] = true
			if err := h.cache.Invalidate(ctx, field, value); err != nil {
				slog.Warn(fmt.Sprintf("%s - %v", clientsLogPrefix, err))
			}
		}
	}
}

// clientFieldValue returns the value c is matched by for field: the code
// column for "code", otherwise a scalar top-level key of its data, rendered the
// way Postgres renders data->>field.
func clientFieldValue(c *db.ActiveClient, field string) (string, bool) {
	if c == nil {
		return "", false
	}
	if field == "code" {
		return c.Code, c.Code != ""
	}
	var data map[string]any
	if err := json.Unmarshal(c.Data, &data); err != nil {
		return "", false
	}
	switch v := data[field].(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// lookupFields returns fields without duplicates, led by "code".
func lookupFields(fields []string) []string {
	out := []string{"code"}
	for _, f := range fields {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
